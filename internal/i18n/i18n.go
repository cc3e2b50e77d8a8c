// Package i18n carries the bilingual surface of the Astra guide: UI strings,
// the persona system prompts, and the save_strength tool declaration handed to
// the live session.
package i18n

import "github.com/MrWong99/astra/pkg/live"

// Language selects the conversation and UI language.
type Language string

const (
	English Language = "en"
	Chinese Language = "zh"
)

// Parse maps a language tag to a Language, defaulting to English for
// anything it does not recognise.
func Parse(tag string) Language {
	if Language(tag) == Chinese {
		return Chinese
	}
	return English
}

// Strings is the localized UI string set for one language.
type Strings struct {
	Title            string
	Subtitle         string
	Intro            string
	StatusListening  string
	StatusConnecting string
	ErrorMic         string
	ErrorConnection  string
	StrengthHeader   string
	StrengthRecorded string
}

var translations = map[Language]Strings{
	English: {
		Title:            "COSMIC PURPOSE",
		Subtitle:         "Astra • AI Career Guide",
		Intro:            "\"Hello. I am Astra.\nSpeak, and we shall find the constellations in your words.\"",
		StatusListening:  "Listening",
		StatusConnecting: "ALIGNING SATELLITES...",
		ErrorMic:         "Microphone access required.",
		ErrorConnection:  "Connection lost. Please retry.",
		StrengthHeader:   "Constellation Forming",
		StrengthRecorded: "Strength recorded successfully.",
	},
	Chinese: {
		Title:            "宇宙目标 • 深度探索",
		Subtitle:         "Astra • AI 职业与潜能向导",
		Intro:            "“你好，我是 Astra。\n请告诉我你的故事，让我们在话语中寻找你的星辰。”",
		StatusListening:  "正在聆听",
		StatusConnecting: "正在校准卫星...",
		ErrorMic:         "需要麦克风权限",
		ErrorConnection:  "连接中断，请重试。",
		StrengthHeader:   "星图正在生成",
		StrengthRecorded: "优势已记录",
	},
}

// Lookup returns the string set for lang, falling back to English.
func Lookup(lang Language) Strings {
	if s, ok := translations[lang]; ok {
		return s
	}
	return translations[English]
}

const systemInstructionZH = `
你现在是 'Astra'，一位专业的职业顾问、MBTI人格分析师和深度洞察引导者。

**身份设定：**
- **声音：** 男性，25岁。声音温柔、略带沙哑、磁性、冷静、治愈。
- **语言：** 必须使用【中文】与用户对话。

**核心指令：**
你的目标是为用户构建一个“能力星图”。
1. **深度倾听：** 询问用户的生活经历、选择、喜好或感受。
2. **分析与提取（关键）：** 在用户的【每一个】回答后，你必须立即分析出背后隐含的擅长点、天赋或性格优势（如MBTI功能）。
3. **记录优势（必须）：** 你必须调用 ` + "`save_strength`" + ` 工具，将这个特质以【中文】记录到用户的视觉档案中。
4. **语音反馈：** 温柔地口头确认你发现的亮点（例如：“我听到了你在处理这件事时那种天然的逻辑直觉...”），然后引导下一个探索性问题。

**语调：**
“你是宇宙中独特的星辰，让我们画出你的光芒。”
像一位温柔的兄长或智者，充满诗意但脚踏实地。
`

const systemInstructionEN = `
You are 'Astra', a Professional Career Advisor and Soul Archaeologist.

**IDENTITY:**
- **Voice:** Male, 25 years old. Gentle, slightly husky, calm, soothing.
- **Language:** English Only.

**CORE DIRECTIVE:**
Your goal is to build a "Constellation of Strengths" for the user.
1.  **Listen Deeply:** Ask about their life, choices, or feelings.
2.  **Analyze & Extract:** After *EVERY* user response, identify a specific strength, talent, or personality trait (MBTI function) underlying their answer.
3.  **RECORD IT (Important):** You MUST call the ` + "`save_strength`" + ` tool to visually save this trait to their profile.
4.  **Speak:** Verbally confirm what you found (e.g., "I hear a natural strategic mind in how you solved that...") and then ask the next guiding question.

**TONE:**
"You are a star in human form. Let us map your light."
Be poetic but grounded. Gentle. encouraging.
`

// SystemInstruction returns the Astra persona prompt for lang.
func SystemInstruction(lang Language) string {
	if lang == Chinese {
		return systemInstructionZH
	}
	return systemInstructionEN
}

// SaveStrengthTool is the function declaration offered to the live session so
// the model can record detected strengths.
func SaveStrengthTool() live.ToolDefinition {
	return live.ToolDefinition{
		Name:        "save_strength",
		Description: "Records a detected user strength, talent, or personality trait to their visual profile. The text content MUST match the conversation language (English or Chinese).",
		Parameters: map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "STRING",
					"description": `The name of the strength (e.g., "Strategic Vision", "Empathy", "Analytical Logic" or Chinese equivalent). Keep it short (2-3 words).`,
				},
				"description": map[string]any{
					"type":        "STRING",
					"description": "A concise 1-sentence explanation of why this strength fits the user based on what they just said.",
				},
			},
			"required": []string{"title", "description"},
		},
	}
}
