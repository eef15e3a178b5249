package models

// StructuredAnswer is the normalized output of any AI call.
type StructuredAnswer struct {
	Title      string   `json:"title"`
	Analysis   string   `json:"analysis"`
	Conclusion string   `json:"conclusion"`
	Tags       []string `json:"tags"`
}
