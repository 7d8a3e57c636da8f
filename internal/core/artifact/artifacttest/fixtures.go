package artifacttest

import (
	"encoding/json"
	"fmt"

	"github.com/jinford/study-rag/internal/core/llm/llmtest"
)

// StudyGuideJSON は妥当な学習ガイドの応答です
const StudyGuideJSON = `{
  "overview": "Photosynthesis converts light energy into chemical energy stored in glucose.",
  "keyConcepts": [
    {"term": "Chlorophyll", "definition": "Pigment that absorbs light."},
    {"term": "Calvin cycle", "definition": "Light-independent reactions fixing carbon dioxide."}
  ],
  "importantDetails": ["Occurs in chloroplasts.", "Releases oxygen."],
  "connections": ["Light reactions supply ATP to the Calvin cycle."],
  "reviewQuestions": ["Where does photosynthesis occur?"]
}`

// QuestionnaireJSON は3形式を含む妥当な問題集の応答です
// 形式に該当しないフィールドに値が入っている問題を含みます
const QuestionnaireJSON = `{
  "title": "Photosynthesis Check",
  "questions": [
    {"type": "multiple_choice", "question": "Which pigment absorbs light?", "options": ["Chlorophyll", "Keratin", "Insulin"], "correctAnswerIndex": 0, "correctAnswerBoolean": null, "sampleAnswer": null, "explanation": "Chlorophyll absorbs light."},
    {"type": "TRUE_FALSE", "question": "Photosynthesis releases oxygen.", "options": ["True", "False"], "correctAnswerIndex": 0, "correctAnswerBoolean": true, "sampleAnswer": null, "explanation": "Oxygen is a by-product."},
    {"type": "short_answer", "question": "Name the sugar produced.", "options": null, "correctAnswerIndex": null, "correctAnswerBoolean": false, "sampleAnswer": "Glucose", "explanation": "Glucose stores the energy."}
  ]
}`

// MindMapJSON は妥当なマインドマップの応答です（葉の children を省略しています）
const MindMapJSON = `{
  "central": "Photosynthesis",
  "branches": [
    {"label": "Inputs", "children": [{"label": "Light"}, {"label": "Water", "children": []}]},
    {"label": "Outputs", "children": [{"label": "Glucose", "children": null}]},
    {"label": "Stages"},
    {"label": "Location", "children": [{"label": "Chloroplast", "children": [{"label": "Thylakoid"}]}]}
  ]
}`

// FlashcardsJSON は n 枚のカードを持つ妥当なフラッシュカードの応答を返します
func FlashcardsJSON(n int) string {
	type card struct {
		Front string `json:"front"`
		Back  string `json:"back"`
	}
	cards := make([]card, n)
	for i := range cards {
		cards[i] = card{
			Front: fmt.Sprintf("Term %d", i+1),
			Back:  fmt.Sprintf("Definition %d", i+1),
		}
	}
	b, err := json.Marshal(map[string]any{"flashcards": cards})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Responses は Shape 名ごとの妥当な応答です
func Responses() map[string]string {
	return map[string]string{
		"study_guide":   StudyGuideJSON,
		"flashcards":    FlashcardsJSON(12),
		"questionnaire": QuestionnaireJSON,
		"mind_map":      MindMapJSON,
	}
}

// NewClient は全種別に妥当な応答を返すモッククライアントを作成します
func NewClient() *llmtest.MockClient {
	return &llmtest.MockClient{GenerateFunc: llmtest.RespondByShape(Responses(), "mock answer")}
}
