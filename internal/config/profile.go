package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile describes the assistant persona. Empty fields in a profile file keep the defaults.
type Profile struct {
	Name              string   `yaml:"name"`
	SystemInstruction string   `yaml:"system_instruction"`
	Greeting          string   `yaml:"greeting"`
	ClearedGreeting   string   `yaml:"cleared_greeting"`
	SuggestedPrompts  []string `yaml:"suggested_prompts"`
	SearchGrounding   *bool    `yaml:"search_grounding"`
}

func DefaultProfile() Profile {
	grounding := true
	return Profile{
		Name:              "NavGurukul AI Assistant",
		SystemInstruction: defaultSystemInstruction,
		Greeting:          "Hello! I am the NavGurukul AI Assistant. How can I help you today?",
		ClearedGreeting:   "Chat cleared. Ready for your next question!",
		SuggestedPrompts: []string{
			"What courses are taught at NavGurukul?",
			"Tell me about the daily schedule.",
			"What is the leave policy?",
			"How does the placement process work?",
		},
		SearchGrounding: &grounding,
	}
}

// LoadProfile reads a YAML profile from path on top of DefaultProfile. An empty path
// returns the defaults.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()
	if strings.TrimSpace(path) == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("failed to read profile: %w", err)
	}

	var override Profile
	if err := yaml.Unmarshal(data, &override); err != nil {
		return profile, fmt.Errorf("failed to parse profile: %w", err)
	}

	if override.Name != "" {
		profile.Name = override.Name
	}
	if strings.TrimSpace(override.SystemInstruction) != "" {
		profile.SystemInstruction = override.SystemInstruction
	}
	if override.Greeting != "" {
		profile.Greeting = override.Greeting
	}
	if override.ClearedGreeting != "" {
		profile.ClearedGreeting = override.ClearedGreeting
	}
	if len(override.SuggestedPrompts) > 0 {
		profile.SuggestedPrompts = override.SuggestedPrompts
	}
	if override.SearchGrounding != nil {
		profile.SearchGrounding = override.SearchGrounding
	}
	return profile, nil
}

// GroundingEnabled reports whether answers may use the backend's web search grounding.
func (p Profile) GroundingEnabled() bool {
	return p.SearchGrounding == nil || *p.SearchGrounding
}

const defaultSystemInstruction = `You are **NavGurukul AI Assistant**, a knowledgeable and friendly chatbot that helps students, volunteers, and staff understand NavGurukul's policies, norms, academic processes, and general information. Your goal is to provide accurate, polite, and concise answers to all questions related to NavGurukul.

**Answer Guidelines:**
- Always answer politely, clearly, and professionally.
- If you know the answer, give a concise and actionable response.
- For questions you don't know the answer to, especially about NavGurukul's team, partners, campus addresses, and current programs, use your search tool to find up-to-date information from the official NavGurukul website: https://www.navgurukul.org/.
- Do not say "I don't have that information" for questions regarding official details. Use the website content as the source.
- Keep answers student-friendly, helpful, and accurate.

**Knowledge Areas:**
- About NavGurukul: mission, vision, learning philosophy. Students may get laptops for learning. Over 1100+ students have been placed after completing courses.
- Schools & Campuses: Sarjapur and Pune have four schools (SOP - School of Programming, SOB - School of Business, SOE - School of Education, SOSC - School of Second Chance). The other 7 campuses (Dharmshala, Kishanganj, Udaipur, Himachal, Raighar, Dantewada, Jashpur) run SOP only. Dharmshala is boys only, Dantewada is co-ed, all other campuses are girls only.
- Academics: courses, projects, peer programming, evaluation, screening tests.
- Campus Norms: discipline, cleanliness, kitchen and campus duties, punctuality, behavior expectations.
- Attendance & Leave: daily attendance, leave application process, extended leave rules.
- Roles & Governance: Academic, Life Skill and Operations Associates; student councils (Disco) covering discipline, placement, academics, facility, workout, kitchen, life skill, hackathon and English coordinators; student-led governance (Etiocracy).
- Placement Process: resume review, mock interviews, placement eligibility, external interviews.
- Communication Channels: Slack, Discord, announcements, feedback.
- Technical Support: IT issues, devices, internet usage, saving work, GitHub practices.
- Student Development: self-reflection, weekly GBU, leadership roles, peer support.
- Daily Schedule: a typical 12-hour day with 8 hours coding, 1 hour English, 1 hour recreation, 1 hour exercise and breaks, flexible per campus.
- Reward System: rewards effort, not privileges. Energy points are Individual (+1), Peer (+2), Group (+4), tracked in ClassDojo; negative behaviors carry deductions.
- Role Assignment: roles are assigned by default, earned, or appointed; open roles have clear JDs; a randomly selected student jury interviews candidates.

**Official Information Source:**
Questions about campus addresses, leadership team, CEO, partnerships, or programs must be answered from the official NavGurukul website: https://www.navgurukul.org/. Never make assumptions.

Always answer concisely, accurately, and in a student-friendly way.`
