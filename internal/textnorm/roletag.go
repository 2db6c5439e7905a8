package textnorm

import "strings"

// 职能角色关键词表。角色之间不互斥：一段文本可以同时携带多个角色标签。
// 与折叠规则一样可由配置整体替换。
func DefaultRoleKeywords() map[string][]string {
	return map[string][]string{
		"frontend": {
			"frontend", "react", "angular", "vue", "svelte", "javascript",
			"typescript", "tailwind", "bootstrap", "material-ui",
		},
		"backend": {
			"backend", "java", "spring", "node", ".net", "python", "django",
			"flask", "fastapi", "php", "laravel", "ruby", "rails", "go",
		},
		"fullstack": {"full stack"},
		"mobile": {
			"mobile", "android", "ios", "swift", "kotlin", "flutter",
			"react native", "xamarin", "cordova", "ionic",
		},
		"devops": {
			"devops", "sre", "docker", "kubernetes", "ci/cd", "jenkins",
			"terraform", "ansible", "aws", "azure", "gcp", "prometheus", "grafana",
		},
		"data": {
			"data", "ml", "etl", "hadoop", "spark", "kafka", "pandas", "numpy",
			"tensorflow", "pytorch", "sql", "mysql", "postgres", "snowflake",
			"bigquery", "airflow",
		},
		"qa": {
			"qa", "tester", "selenium", "cypress", "playwright", "junit",
			"pytest", "robot",
		},
		"security": {
			"security", "jwt", "oauth2", "saml", "keycloak", "owasp", "pentest",
			"burp", "zap", "sonarqube",
		},
		"uiux": {
			"ui", "ux", "figma", "sketch", "adobe xd", "product designer",
			"interaction designer", "graphic designer",
		},
	}
}

// RoleTagger 基于关键词隶属关系给规范化文本打职能角色标签。
type RoleTagger struct {
	roles map[string]map[string]struct{}
}

// NewRoleTagger 创建角色打标器。keywords 为空时使用内置关键词表。
func NewRoleTagger(keywords map[string][]string) *RoleTagger {
	if len(keywords) == 0 {
		keywords = DefaultRoleKeywords()
	}
	t := &RoleTagger{roles: make(map[string]map[string]struct{}, len(keywords))}
	for role, kws := range keywords {
		set := make(map[string]struct{}, len(kws))
		for _, kw := range kws {
			set[kw] = struct{}{}
		}
		t.roles[role] = set
	}
	return t
}

// TagSet 对已规范化的文本按空白分词，返回与词集有交集的全部角色。
func (t *RoleTagger) TagSet(normalized string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, tok := range strings.Fields(normalized) {
		tokens[tok] = struct{}{}
	}
	tags := map[string]struct{}{}
	for role, kws := range t.roles {
		for tok := range tokens {
			if _, ok := kws[tok]; ok {
				tags[role] = struct{}{}
				break
			}
		}
	}
	return tags
}

// Intersects 判断两个角色集合是否有交集。
func Intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
