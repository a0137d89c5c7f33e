package constants

type LanguageType string

const (
	LanguageC   LanguageType = "c"
	LanguageCpp LanguageType = "cpp"
)
