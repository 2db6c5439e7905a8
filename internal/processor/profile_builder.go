package processor

import (
	"strings"

	"cv-scoring-go/internal/types"
)

// BuildCandidateProfile 将实体片段装配为候选人画像。
// 单值字段取第一个出现的片段；技能在所有片段内按逗号切分去重；
// 标注模型没有对应标签的字段（外语、奖项）以及缺失字段统一填显式缺失标记，
// 与空字符串区分开。
func BuildCandidateProfile(spans []types.EntitySpan) *types.CandidateProfile {
	profile := &types.CandidateProfile{
		Designation:    types.NotProvided,
		YearsRaw:       types.NotProvided,
		Degree:         types.NotProvided,
		GPARaw:         types.NotProvided,
		Languages:      types.NotProvided,
		Certifications: types.NotProvided,
		Awards:         types.NotProvided,
	}

	var certs, projects []string
	seen := make(map[string]struct{})

	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		switch span.Label {
		case "NAME":
			if profile.Name == "" {
				profile.Name = text
			}
		case "DESIG":
			if profile.Designation == types.NotProvided {
				profile.Designation = text
			}
		case "WORKING_TIME_EXPERIENCES":
			if profile.YearsRaw == types.NotProvided {
				profile.YearsRaw = text
			}
		case "DEG":
			if profile.Degree == types.NotProvided {
				profile.Degree = text
			}
		case "GPA":
			if profile.GPARaw == types.NotProvided {
				profile.GPARaw = text
			}
		case "GITHUB":
			if profile.GitHub == "" {
				profile.GitHub = text
			}
		case "TECHSTACK_SKILLS":
			for _, skill := range splitSkills(text) {
				key := strings.ToLower(skill)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				profile.Skills = append(profile.Skills, skill)
			}
		case "CERTIFICATION":
			certs = append(certs, text)
		case "PROJECT":
			projects = append(projects, text)
		}
	}

	if len(certs) > 0 {
		profile.Certifications = strings.Join(certs, ", ")
	}
	if len(projects) > 0 {
		profile.Projects = strings.Join(projects, ", ")
	}
	return profile
}

// splitSkills 按逗号、分号、顿号切分技能片段。
func splitSkills(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '、' || r == '，'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
