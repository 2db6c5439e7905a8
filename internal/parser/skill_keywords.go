package parser

import "strings"

// 关键词技能扫描的内置词表，按类别分组。
// 仅在LLM提取失败或未返回任何技能时作为降级路径使用。

// progLangs 编程语言
var progLangs = []string{
	"Java", "Kotlin", "Scala", "Groovy", "Python", "TypeScript", "JavaScript",
	"Dart", "Go", "Rust", "C", "C++", "C#", "VB.NET", "PHP", "Ruby", "Elixir",
	"Swift", "Objective-C", "R", "MATLAB", "Perl", "Lua",
}

// backendFrameworks 后端框架与运行时
var backendFrameworks = []string{
	"Spring Framework", "Spring Boot", "Micronaut", "Quarkus", "JHipster",
	"Jakarta EE", "Struts", "Hibernate", ".NET Core", "ASP.NET",
	"Entity Framework", "Express.js", "NestJS", "Fastify", "HapiJS",
	"Django", "Flask", "FastAPI", "Tornado", "Rails", "Sinatra",
	"Laravel", "Symfony", "Phoenix", "Fiber (Go)", "Gin (Go)",
	"Actix", "Rocket", "Ktor", "Vert.x",
}

// frontendFrameworks 前端框架与库
var frontendFrameworks = []string{
	"ReactJS", "Next.js", "Remix", "AngularJS", "Angular", "Vue.js", "Nuxt.js",
	"Svelte", "SvelteKit", "SolidJS", "Bootstrap", "Tailwind CSS",
	"Material-UI", "jQuery", "Lit", "Stencil",
}

// mobilePlatforms 移动端与跨平台
var mobilePlatforms = []string{
	"Android", "iOS", "SwiftUI", "Jetpack Compose", "React Native", "Flutter",
	"Ionic", "Cordova", "Xamarin", "Kotlin Multiplatform", "Capacitor",
}

// databases 数据库与存储
var databases = []string{
	"MySQL", "PostgreSQL", "Oracle", "SQL Server", "MongoDB", "Cassandra",
	"Redis", "Memcached", "Elasticsearch", "OpenSearch", "Solr", "DynamoDB",
	"Firebase Realtime DB", "Firestore", "Neo4j", "ArangoDB", "TimescaleDB",
	"InfluxDB", "ClickHouse", "Snowflake", "BigQuery",
}

// devopsCloud DevOps与云
var devopsCloud = []string{
	"DevOps", "CI/CD", "Jenkins", "GitHub Actions", "GitLab CI", "Docker",
	"Docker Compose", "Podman", "Kubernetes", "Helm", "ArgoCD", "FluxCD",
	"AWS", "Azure", "Google Cloud", "Oracle Cloud", "Heroku", "Terraform",
	"Pulumi", "Ansible", "Chef", "Puppet", "OpenShift", "Rancher", "Istio",
	"Linkerd", "Prometheus", "Grafana",
}

// testingTools 测试与质量
var testingTools = []string{
	"JUnit", "TestNG", "Mockito", "Cypress", "Playwright", "Selenium", "Jest",
	"Vitest", "Mocha", "Chai", "PyTest", "Robot Framework", "Cucumber",
	"Postman", "Gatling", "k6", "JMeter",
}

// securityAuth 安全与认证
var securityAuth = []string{
	"OAuth2", "JWT", "Keycloak", "Okta", "OpenID Connect", "SAML",
	"Spring Security", "OWASP", "Burp Suite", "SonarQube", "Zap",
}

// bigDataStreaming 大数据与流处理
var bigDataStreaming = []string{
	"Hadoop", "Spark", "Flink", "Kafka", "RabbitMQ", "Kinesis", "Pulsar",
	"Hive", "Presto", "Trino",
}

// mlAI 机器学习与AI
var mlAI = []string{
	"TensorFlow", "PyTorch", "Keras", "Scikit-learn", "pandas", "NumPy",
	"spaCy", "Hugging Face", "LangChain", "OpenCV", "ONNX", "MLflow", "Airflow",
}

// miscTools 其他工具与方法论
var miscTools = []string{
	"Linux", "Unix", "Bash", "PowerShell", "Git", "GitHub", "Bitbucket", "SVN",
	"REST", "GraphQL", "gRPC", "WebSocket", "Microservices", "Serverless",
	"Event Driven", "TDD", "DDD", "Clean Architecture", "Agile", "Scrum",
	"Kanban",
}

// commonSkills 所有类别的合并词表
var commonSkills = concatSkillLists(
	progLangs, backendFrameworks, frontendFrameworks, mobilePlatforms,
	databases, devopsCloud, testingTools, securityAuth, bigDataStreaming,
	mlAI, miscTools,
)

func concatSkillLists(lists ...[]string) []string {
	var all []string
	for _, list := range lists {
		all = append(all, list...)
	}
	return all
}

// ScanSkillKeywords 在JD文本中扫描词表命中的技能，大小写不敏感的子串匹配。
// 保留词表中的原始大小写形式。
func ScanSkillKeywords(jdText string) []string {
	lower := strings.ToLower(jdText)
	var found []string
	for _, skill := range commonSkills {
		if strings.Contains(lower, strings.ToLower(skill)) {
			found = append(found, skill)
		}
	}
	return found
}
