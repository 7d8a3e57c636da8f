package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// QuestionType は問題形式
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// payload は生成結果の構造体が満たす振る舞い
// normalize で表記ゆれを整え、validate で構造を検証する
type payload interface {
	normalize()
	validate() error
}

// StudyGuide は学習ガイド
type StudyGuide struct {
	Overview         string       `json:"overview"`
	KeyConcepts      []KeyConcept `json:"keyConcepts"`
	ImportantDetails []string     `json:"importantDetails"`
	Connections      []string     `json:"connections"`
	ReviewQuestions  []string     `json:"reviewQuestions"`
}

// KeyConcept は用語と定義の組
type KeyConcept struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

func (g *StudyGuide) normalize() {
	g.Overview = strings.TrimSpace(g.Overview)
	for i := range g.KeyConcepts {
		g.KeyConcepts[i].Term = strings.TrimSpace(g.KeyConcepts[i].Term)
		g.KeyConcepts[i].Definition = strings.TrimSpace(g.KeyConcepts[i].Definition)
	}
	g.ImportantDetails = compactStrings(g.ImportantDetails)
	g.Connections = compactStrings(g.Connections)
	g.ReviewQuestions = compactStrings(g.ReviewQuestions)
}

func (g *StudyGuide) validate() error {
	if g.Overview == "" {
		return errors.New("overview is empty")
	}
	if len(g.KeyConcepts) == 0 {
		return errors.New("keyConcepts is empty")
	}
	for i, c := range g.KeyConcepts {
		if c.Term == "" || c.Definition == "" {
			return fmt.Errorf("keyConcepts[%d] must have term and definition", i)
		}
	}
	if len(g.ReviewQuestions) == 0 {
		return errors.New("reviewQuestions is empty")
	}
	return nil
}

// Flashcards はフラッシュカードの集合
type Flashcards struct {
	Flashcards []Flashcard `json:"flashcards"`
}

// Flashcard は表（問い・用語）と裏（答え・定義）の組
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

func (f *Flashcards) normalize() {
	for i := range f.Flashcards {
		f.Flashcards[i].Front = strings.TrimSpace(f.Flashcards[i].Front)
		f.Flashcards[i].Back = strings.TrimSpace(f.Flashcards[i].Back)
	}
}

func (f *Flashcards) validate() error {
	if len(f.Flashcards) == 0 {
		return errors.New("flashcards is empty")
	}
	for i, c := range f.Flashcards {
		if c.Front == "" || c.Back == "" {
			return fmt.Errorf("flashcards[%d] must have front and back", i)
		}
	}
	return nil
}

// Questionnaire は問題集
type Questionnaire struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question は1問分
// 形式に該当しないフィールドは省略せず null として出力する
type Question struct {
	Type                 QuestionType `json:"type"`
	Question             string       `json:"question"`
	Options              []string     `json:"options"`
	CorrectAnswerIndex   *int         `json:"correctAnswerIndex"`
	CorrectAnswerBoolean *bool        `json:"correctAnswerBoolean"`
	SampleAnswer         *string      `json:"sampleAnswer"`
	Explanation          string       `json:"explanation"`
}

func (q *Questionnaire) normalize() {
	q.Title = strings.TrimSpace(q.Title)
	for i := range q.Questions {
		q.Questions[i].normalize()
	}
}

func (q *Question) normalize() {
	q.Type = QuestionType(strings.ToLower(strings.TrimSpace(string(q.Type))))
	q.Question = strings.TrimSpace(q.Question)
	q.Explanation = strings.TrimSpace(q.Explanation)

	switch q.Type {
	case QuestionMultipleChoice:
		q.CorrectAnswerBoolean = nil
		q.SampleAnswer = nil
	case QuestionTrueFalse:
		q.Options = nil
		q.CorrectAnswerIndex = nil
		q.SampleAnswer = nil
	case QuestionShortAnswer:
		q.Options = nil
		q.CorrectAnswerIndex = nil
		q.CorrectAnswerBoolean = nil
	}
}

func (q *Questionnaire) validate() error {
	if q.Title == "" {
		return errors.New("title is empty")
	}
	if len(q.Questions) == 0 {
		return errors.New("questions is empty")
	}
	for i := range q.Questions {
		if err := q.Questions[i].validate(); err != nil {
			return fmt.Errorf("questions[%d]: %w", i, err)
		}
	}
	return nil
}

func (q *Question) validate() error {
	if q.Question == "" {
		return errors.New("question is empty")
	}
	if q.Explanation == "" {
		return errors.New("explanation is empty")
	}

	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) < 2 {
			return errors.New("multiple_choice needs at least two options")
		}
		if q.CorrectAnswerIndex == nil || *q.CorrectAnswerIndex < 0 || *q.CorrectAnswerIndex >= len(q.Options) {
			return errors.New("correctAnswerIndex is out of range")
		}
	case QuestionTrueFalse:
		if q.CorrectAnswerBoolean == nil {
			return errors.New("true_false needs correctAnswerBoolean")
		}
	case QuestionShortAnswer:
		if q.SampleAnswer == nil || strings.TrimSpace(*q.SampleAnswer) == "" {
			return errors.New("short_answer needs sampleAnswer")
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}

// MindMap はマインドマップ
type MindMap struct {
	Central  string   `json:"central"`
	Branches []Branch `json:"branches"`
}

// Branch はマインドマップの枝（子を再帰的に持つ）
type Branch struct {
	Label    string   `json:"label"`
	Children []Branch `json:"children"`
}

func (m *MindMap) normalize() {
	m.Central = strings.TrimSpace(m.Central)
	normalizeBranches(m.Branches)
}

func normalizeBranches(branches []Branch) {
	for i := range branches {
		branches[i].Label = strings.TrimSpace(branches[i].Label)
		// 葉は null ではなく空配列で出力する
		if branches[i].Children == nil {
			branches[i].Children = []Branch{}
		}
		normalizeBranches(branches[i].Children)
	}
}

func (m *MindMap) validate() error {
	if m.Central == "" {
		return errors.New("central is empty")
	}
	if len(m.Branches) == 0 {
		return errors.New("branches is empty")
	}
	return validateBranches(m.Branches, "branches")
}

func validateBranches(branches []Branch, path string) error {
	for i, b := range branches {
		p := fmt.Sprintf("%s[%d]", path, i)
		if b.Label == "" {
			return fmt.Errorf("%s.label is empty", p)
		}
		if err := validateBranches(b.Children, p+".children"); err != nil {
			return err
		}
	}
	return nil
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var (
	_ payload = (*StudyGuide)(nil)
	_ payload = (*Flashcards)(nil)
	_ payload = (*Questionnaire)(nil)
	_ payload = (*MindMap)(nil)
)
