package model

// FAQ is one question/answer pair from the knowledge index.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Passage is one ranked hit from the vector index. Content is the
// indexed text, Answer the optional canned answer stored beside it.
type Passage struct {
	Content string
	Answer  string
	Score   float32
}
