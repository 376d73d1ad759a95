package version

// Current is the released version of email-finder. Bumped by the release workflow.
var Current = "0.1.0"

// UserAgent identifies this tool in outbound HTTP requests.
func UserAgent() string {
	return "email-finder/" + Current
}
