package gemini

// promptData is passed to the prompt templates.
type promptData struct {
	Topic string
	Title string
	Count int
}

// titlesResponse is the JSON document the title prompt asks for.
type titlesResponse struct {
	Titles []string `json:"titles"`
}
