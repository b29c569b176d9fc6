package redact

// Built-in expressions. RE2 has no lookaround, so the phone layer is wrapped
// by digitBounded and only tried at phoneStarts bytes.
const (
	apiKeyExpr = `\b(?:` +
		`sk-[A-Za-z0-9]{20,}` + // OpenAI
		`|AKIA[A-Z0-9]{16}` + // AWS
		`|ghp_[A-Za-z0-9]{36,}` + // GitHub PAT
		`|gh[sor]_[A-Za-z0-9]{36,}` + // other GitHub tokens
		`|xox[bp]-[A-Za-z0-9\-]{10,}` + // Slack
		`)\b`

	emailExpr = `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`

	phoneExpr = `(?:\+\d{1,3}[\s\-]?)?` +
		`(?:\(\d{2,4}\)[\s\-]?|\d{2,4}[\s\-])` +
		`\d{3,4}[\s\-]?\d{3,4}`

	phoneStarts = "+(0123456789"

	ipv4Expr = `\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}` +
		`(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`

	ipv6Expr = `(?:` +
		`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b` +
		`|\b(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}\b` +
		`|\b(?:[0-9a-fA-F]{1,4}:){1,7}:` +
		`|::(?:[0-9a-fA-F]{1,4}:){0,6}[0-9a-fA-F]{1,4}\b` +
		`|::1\b` +
		`)`

	// 13-19 digits with optional space/dash separators; Luhn decides.
	creditCardExpr = `\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{1,7}\b`
)

// Labels used in placeholders.
const (
	LabelAPIKey     = "api_key"
	LabelEmail      = "email"
	LabelPhone      = "phone"
	LabelIPAddress  = "ip_address"
	LabelCreditCard = "credit_card"
)
