// Package delivery splits long agent output into sendable messages and
// hands them to a transport (webhook or log).
package delivery

import (
	"unicode"
)

// DefaultLimit is the per-message character limit when none is configured.
const DefaultLimit = 2000

// attachmentName is the filename used when a response is too long to
// chunk and is attached whole instead.
const attachmentName = "response.txt"

// attachmentNote is appended to the truncated summary of an attached
// response.
const attachmentNote = "\n\n[full response attached]"

// File is an attachment carried alongside a message.
type File struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Message is one deliverable unit: text, optionally with an attachment.
type Message struct {
	Content string `json:"content"`
	File    *File  `json:"file,omitempty"`
}

// Chunk splits text into pieces of at most limit characters. Within each
// window it breaks at the last newline at or before the limit, or failing
// that the last space, but only when the break falls in the second half
// of the window; otherwise it hard-cuts at the limit. The whitespace
// character at a soft break is dropped, and each subsequent chunk is
// trimmed of leading whitespace.
func Chunk(text string, limit int) []string {
	r := []rune(text)
	if limit <= 0 || len(r) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(r) > 0 {
		if len(chunks) > 0 {
			i := 0
			for i < len(r) && unicode.IsSpace(r[i]) {
				i++
			}
			r = r[i:]
			if len(r) == 0 {
				break
			}
		}
		if len(r) <= limit {
			chunks = append(chunks, string(r))
			break
		}

		// The search window includes the rune at the limit itself: a
		// newline or space sitting exactly there is still a clean break.
		window := r[:limit+1]
		half := limit / 2
		cut, drop := limit, 0
		if idx := lastIndex(window, '\n'); idx >= half {
			cut, drop = idx, 1
		} else if idx := lastIndex(window, ' '); idx >= half {
			cut, drop = idx, 1
		}

		// cut can be 0 when the window starts with a break (limit 1);
		// skip the empty chunk and just drop the whitespace.
		if cut > 0 {
			chunks = append(chunks, string(r[:cut]))
		}
		r = r[cut+drop:]
	}
	return chunks
}

// Split turns text into deliverable messages under the given limit.
// Text within the limit goes out as-is. Text longer than three messages'
// worth is not chunked at all: a truncated summary goes out with the full
// text attached as a file. Everything in between is chunked.
func Split(text string, limit int) []Message {
	if limit <= 0 {
		limit = DefaultLimit
	}
	r := []rune(text)

	if len(r) <= limit {
		return []Message{{Content: text}}
	}

	if len(r) > 3*limit {
		head := limit - len([]rune(attachmentNote))
		if head < 0 {
			head = 0
		}
		summary := string(r[:head]) + attachmentNote
		return []Message{{
			Content: summary,
			File:    &File{Name: attachmentName, Data: []byte(text)},
		}}
	}

	chunks := Chunk(text, limit)
	messages := make([]Message, 0, len(chunks))
	for _, c := range chunks {
		messages = append(messages, Message{Content: c})
	}
	return messages
}

func lastIndex(r []rune, c rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == c {
			return i
		}
	}
	return -1
}
