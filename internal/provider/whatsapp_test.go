package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// cloudAPIStub fakes the Graph API media and message endpoints and
// records what was posted to each.
type cloudAPIStub struct {
	uploads  []string // uploaded file names
	payloads []map[string]interface{}
}

func (s *cloudAPIStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("media upload is not multipart: %v", err)
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			if got := r.FormValue("messaging_product"); got != "whatsapp" {
				t.Errorf("messaging_product = %q", got)
			}
			files := r.MultipartForm.File["file"]
			if len(files) != 1 {
				t.Errorf("expected one uploaded file, got %d", len(files))
				http.Error(w, "missing file", http.StatusBadRequest)
				return
			}
			s.uploads = append(s.uploads, files[0].Filename)
			fmt.Fprintf(w, `{"id":"media-%d"}`, len(s.uploads))
		case strings.HasSuffix(r.URL.Path, "/messages"):
			var payload map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("send payload is not JSON: %v", err)
			}
			s.payloads = append(s.payloads, payload)
			fmt.Fprintf(w, `{"messages":[{"id":"wamid.%d"}]}`, len(s.payloads))
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

func TestWhatsAppSendText(t *testing.T) {
	stub := &cloudAPIStub{}
	ts := httptest.NewServer(stub.handler(t))
	defer ts.Close()

	adapter := NewWhatsApp(WhatsAppConfig{APIURL: ts.URL})
	cred := &Credential{ExternalAccountID: "pn-1", AccessToken: "tok"}

	id, err := adapter.Send(context.Background(), cred, &Envelope{To: "+15551234", Body: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "wamid.1" {
		t.Errorf("message id = %q, want wamid.1", id)
	}
	if len(stub.uploads) != 0 {
		t.Errorf("text-only send uploaded media: %v", stub.uploads)
	}
	if len(stub.payloads) != 1 || stub.payloads[0]["type"] != "text" {
		t.Fatalf("payloads = %v", stub.payloads)
	}
}

func TestWhatsAppSendUploadsMediaFirst(t *testing.T) {
	stub := &cloudAPIStub{}
	ts := httptest.NewServer(stub.handler(t))
	defer ts.Close()

	adapter := NewWhatsApp(WhatsAppConfig{APIURL: ts.URL})
	cred := &Credential{ExternalAccountID: "pn-1", AccessToken: "tok"}

	env := &Envelope{
		To:   "+15551234",
		Body: "see attached",
		Attachments: []OutgoingAttachment{
			{FileName: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf bytes")},
		},
	}
	id, err := adapter.Send(context.Background(), cred, env)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "wamid.1" {
		t.Errorf("message id = %q, want the text message id wamid.1", id)
	}
	if len(stub.uploads) != 1 || stub.uploads[0] != "report.pdf" {
		t.Fatalf("uploads = %v", stub.uploads)
	}
	if len(stub.payloads) != 2 {
		t.Fatalf("expected text + document payloads, got %v", stub.payloads)
	}
	doc, ok := stub.payloads[1]["document"].(map[string]interface{})
	if !ok || stub.payloads[1]["type"] != "document" {
		t.Fatalf("second payload is not a document message: %v", stub.payloads[1])
	}
	if doc["id"] != "media-1" || doc["filename"] != "report.pdf" {
		t.Errorf("document payload = %v", doc)
	}
}

func TestWhatsAppSendImageWithoutBody(t *testing.T) {
	stub := &cloudAPIStub{}
	ts := httptest.NewServer(stub.handler(t))
	defer ts.Close()

	adapter := NewWhatsApp(WhatsAppConfig{APIURL: ts.URL})
	cred := &Credential{ExternalAccountID: "pn-1", AccessToken: "tok"}

	env := &Envelope{
		To: "+15551234",
		Attachments: []OutgoingAttachment{
			{FileName: "photo.png", ContentType: "image/png", Content: []byte("png bytes")},
		},
	}
	id, err := adapter.Send(context.Background(), cred, env)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "wamid.1" {
		t.Errorf("message id = %q", id)
	}
	if len(stub.payloads) != 1 {
		t.Fatalf("empty body must not produce a text message: %v", stub.payloads)
	}
	img, ok := stub.payloads[0]["image"].(map[string]interface{})
	if !ok || stub.payloads[0]["type"] != "image" {
		t.Fatalf("payload is not an image message: %v", stub.payloads[0])
	}
	if img["id"] != "media-1" {
		t.Errorf("image payload = %v", img)
	}
}
