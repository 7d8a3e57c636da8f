package artifact

import (
	"fmt"

	"github.com/jinford/study-rag/internal/core/llm"
)

// template は種別ごとのシステム指示・ユーザー入力の前置き・出力形
type template struct {
	system     string
	userPrefix string
	shape      *llm.Shape
	newPayload func() payload
}

// templateFor は種別に対応するテンプレートを返す
// 種別を追加した場合はここに分岐を追加する
func templateFor(t Type) (template, error) {
	switch t {
	case TypeStudyGuide:
		return template{
			system:     studyGuideInstruction,
			userPrefix: "Create a study guide from this content:\n\n",
			shape:      &llm.Shape{Name: "study_guide", Description: "A structured study guide", Schema: studyGuideSchema()},
			newPayload: func() payload { return &StudyGuide{} },
		}, nil
	case TypeFlashcards:
		return template{
			system:     flashcardsInstruction,
			userPrefix: "Create flashcards from this content:\n\n",
			shape:      &llm.Shape{Name: "flashcards", Description: "A deck of flashcards", Schema: flashcardsSchema()},
			newPayload: func() payload { return &Flashcards{} },
		}, nil
	case TypeQuestionnaire:
		return template{
			system:     questionnaireInstruction,
			userPrefix: "Create a questionnaire from this content:\n\n",
			shape:      &llm.Shape{Name: "questionnaire", Description: "A questionnaire with mixed question types", Schema: questionnaireSchema()},
			newPayload: func() payload { return &Questionnaire{} },
		}, nil
	case TypeMindMap:
		return template{
			system:     mindMapInstruction,
			userPrefix: "Create a mind map from this content:\n\n",
			shape:      &llm.Shape{Name: "mind_map", Description: "A hierarchical mind map", Schema: mindMapSchema()},
			newPayload: func() payload { return &MindMap{} },
		}, nil
	}
	return template{}, fmt.Errorf("no template for artifact type %q", t)
}

const studyGuideInstruction = `You are an expert educator. Create a comprehensive study guide based on the provided content.

The study guide must include:
- overview: A brief introduction to the topic (2-3 sentences)
- keyConcepts: List of key terms with their definitions (term, definition)
- importantDetails: List of supporting information and examples
- connections: List of how concepts relate to each other
- reviewQuestions: List of questions to test understanding

Respond with a single JSON object using exactly these fields.`

const flashcardsInstruction = `You are an expert educator. Create flashcards for effective spaced repetition learning.

Create 10-15 flashcards covering the most important concepts.
Each flashcard has:
- front: A question or term
- back: The answer or definition (concise but complete)

Respond with a single JSON object of the form {"flashcards": [{"front": ..., "back": ...}]}.`

const questionnaireInstruction = `You are an expert educator. Create a comprehensive questionnaire to test understanding.

Create 10-12 questions with a mix of types:
- type: "multiple_choice", "true_false", or "short_answer"
- question: The question text
- options: List of options (only for multiple_choice, use null otherwise)
- correctAnswerIndex: Index of correct option (only for multiple_choice, use null otherwise)
- correctAnswerBoolean: true/false (only for true_false, use null otherwise)
- sampleAnswer: Expected answer (only for short_answer, use null otherwise)
- explanation: Why this answer is correct

Include a title for the questionnaire.
Respond with a single JSON object of the form {"title": ..., "questions": [...]}.`

const mindMapInstruction = `You are an expert at creating mind maps. Analyze the content and create a hierarchical mind map structure.

The mind map must have:
- central: The main topic
- branches: List of main branches, each with:
  - label: The branch name
  - children: List of sub-branches (can be nested, use an empty list for leaves)

Create a well-organized mind map with 4-6 main branches and relevant sub-topics.
Respond with a single JSON object of the form {"central": ..., "branches": [...]}.`

func stringSchema() map[string]any {
	return map[string]any{"type": "string"}
}

func nullable(typ string) map[string]any {
	return map[string]any{"type": []string{typ, "null"}}
}

func arrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func objectOf(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func studyGuideSchema() map[string]any {
	return objectOf(map[string]any{
		"overview": stringSchema(),
		"keyConcepts": arrayOf(objectOf(map[string]any{
			"term":       stringSchema(),
			"definition": stringSchema(),
		}, "term", "definition")),
		"importantDetails": arrayOf(stringSchema()),
		"connections":      arrayOf(stringSchema()),
		"reviewQuestions":  arrayOf(stringSchema()),
	}, "overview", "keyConcepts", "importantDetails", "connections", "reviewQuestions")
}

func flashcardsSchema() map[string]any {
	return objectOf(map[string]any{
		"flashcards": arrayOf(objectOf(map[string]any{
			"front": stringSchema(),
			"back":  stringSchema(),
		}, "front", "back")),
	}, "flashcards")
}

func questionnaireSchema() map[string]any {
	question := objectOf(map[string]any{
		"type": map[string]any{
			"type": "string",
			"enum": []string{string(QuestionMultipleChoice), string(QuestionTrueFalse), string(QuestionShortAnswer)},
		},
		"question": stringSchema(),
		"options": map[string]any{
			"type":  []string{"array", "null"},
			"items": stringSchema(),
		},
		"correctAnswerIndex":   nullable("integer"),
		"correctAnswerBoolean": nullable("boolean"),
		"sampleAnswer":         nullable("string"),
		"explanation":          stringSchema(),
	}, "type", "question", "options", "correctAnswerIndex", "correctAnswerBoolean", "sampleAnswer", "explanation")

	return objectOf(map[string]any{
		"title":     stringSchema(),
		"questions": arrayOf(question),
	}, "title", "questions")
}

func mindMapSchema() map[string]any {
	branchRef := map[string]any{"$ref": "#/$defs/branch"}

	schema := objectOf(map[string]any{
		"central":  stringSchema(),
		"branches": arrayOf(branchRef),
	}, "central", "branches")
	schema["$defs"] = map[string]any{
		"branch": objectOf(map[string]any{
			"label":    stringSchema(),
			"children": arrayOf(branchRef),
		}, "label", "children"),
	}
	return schema
}
