package recognition

import (
	"regexp"
	"strings"

	"github.com/aveledo/examflow/internal/domain"
)

// Identity field extraction runs regex patterns over the recognized free
// text. Patterns are tried in a fixed priority order and the first match
// wins. A field with no matching pattern is left unset; that is not an
// error, it just surfaces later as a quality issue.

var studentIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`学号[:：\s]*([0-9A-Za-z-]{4,32})`),
	regexp.MustCompile(`考号[:：\s]*([0-9A-Za-z-]{4,32})`),
	regexp.MustCompile(`(?i)student\s*(?:id|no\.?)[:：\s]*([0-9A-Za-z-]{4,32})`),
}

var studentNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`姓名[:：\s]*([^\s:：，,。]{1,20})`),
	regexp.MustCompile(`(?i)name[:：\s]+([A-Za-z][A-Za-z .'-]{0,40})`),
}

var classNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`班级[:：\s]*([^\s:：，,。]{1,20})`),
	regexp.MustCompile(`(?i)class[:：\s]+([0-9A-Za-z-]{1,20})`),
}

// ExtractIdentity pulls student identity fields out of recognized text,
// preferring structured fields the recognition service already extracted.
// Free-text patterns are the fallback for anything the service missed.
func ExtractIdentity(text string, fields map[string]string) domain.Identity {
	identity := domain.Identity{
		StudentID:   strings.TrimSpace(fields["student_id"]),
		StudentName: strings.TrimSpace(fields["student_name"]),
		ClassName:   strings.TrimSpace(fields["class_name"]),
	}

	if identity.StudentID == "" {
		identity.StudentID = firstMatch(studentIDPatterns, text)
	}
	if identity.StudentName == "" {
		identity.StudentName = firstMatch(studentNamePatterns, text)
	}
	if identity.ClassName == "" {
		identity.ClassName = firstMatch(classNamePatterns, text)
	}

	return identity
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
