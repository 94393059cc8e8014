package harvest

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
)

// fakeMail is an in-memory MailService.
type fakeMail struct {
	mu sync.Mutex

	// pages maps a cursor ("" for the first page) to the page it returns.
	pages       map[string]Page
	messages    map[string]*Part
	attachments map[string]string // "<message>/<attachment>" -> encoded data

	listErrAt map[string]error
	getErr    map[string]error
	attErr    error

	listCalls       int
	getCalls        int
	attachmentCalls int
	filters         []string
	pageSizes       []int
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		pages:       map[string]Page{},
		messages:    map[string]*Part{},
		attachments: map[string]string{},
		listErrAt:   map[string]error{},
		getErr:      map[string]error{},
	}
}

// addMessage registers a message, listing it on the first page.
func (f *fakeMail) addMessage(id string, root *Part) {
	page := f.pages[""]
	page.IDs = append(page.IDs, id)
	f.pages[""] = page
	f.messages[id] = root
}

func (f *fakeMail) addAttachment(messageID, attachmentID string, data []byte) {
	f.attachments[messageID+"/"+attachmentID] = base64.URLEncoding.EncodeToString(data)
}

func (f *fakeMail) ListMessages(_ context.Context, filter string, pageSize int, cursor string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.filters = append(f.filters, filter)
	f.pageSizes = append(f.pageSizes, pageSize)

	if err := f.listErrAt[cursor]; err != nil {
		return Page{}, err
	}
	return f.pages[cursor], nil
}

func (f *fakeMail) GetMessage(_ context.Context, id string) (*Part, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++

	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	root, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return root, nil
}

func (f *fakeMail) GetAttachment(_ context.Context, messageID, attachmentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachmentCalls++

	if f.attErr != nil {
		return "", f.attErr
	}
	return f.attachments[messageID+"/"+attachmentID], nil
}

func attachment(partID, filename, attachmentID string) *Part {
	return &Part{PartID: partID, Filename: filename, AttachmentID: attachmentID}
}

func textPart(partID string) *Part {
	return &Part{PartID: partID, ContentType: "text/plain", Data: "aGVsbG8="}
}

func multipart(partID string, children ...*Part) *Part {
	return &Part{PartID: partID, ContentType: "multipart/mixed", Children: children}
}
