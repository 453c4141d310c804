package resendmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/stretchr/testify/assert"
)

var testEmail = contact.Email{
	From:    "reply@example.com",
	To:      []string{"contact@example.com"},
	Subject: "New contact from Bobby Tables",
	Text:    "Hello there",
	ReplyTo: "reply@example.com",
}

func TestResendMail_Dispatch(t *testing.T) {
	var got map[string]interface{}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`))
	}))
	defer srv.Close()

	r := NewResendProvider("re_123", WithAPIURL(srv.URL))

	id, ok := r.Dispatch(context.Background(), testEmail)

	assert.True(t, ok)
	assert.Equal(t, "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794", id)
	assert.Equal(t, "Bearer re_123", auth)
	assert.Equal(t, map[string]interface{}{
		"from":     "reply@example.com",
		"to":       []interface{}{"contact@example.com"},
		"subject":  "New contact from Bobby Tables",
		"text":     "Hello there",
		"reply_to": "reply@example.com",
	}, got)
}

func TestResendMail_Dispatch_Failed(t *testing.T) {
	tests := []struct {
		Name   string
		Status int
		Body   string
	}{
		{
			Name:   "provider error",
			Status: http.StatusUnprocessableEntity,
			Body:   `{"statusCode":422,"message":"Invalid from field"}`,
		},
		{
			Name:   "missing id",
			Status: http.StatusOK,
			Body:   `{}`,
		},
		{
			Name:   "malformed body",
			Status: http.StatusOK,
			Body:   `<html>`,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.Status)
				w.Write([]byte(test.Body))
			}))
			defer srv.Close()

			r := NewResendProvider("re_123", WithAPIURL(srv.URL))

			id, ok := r.Dispatch(context.Background(), testEmail)

			assert.False(t, ok)
			assert.Equal(t, "", id)
		})
	}
}

func TestResendMail_Dispatch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := NewResendProvider("re_123", WithAPIURL(url))

	id, ok := r.Dispatch(context.Background(), testEmail)

	assert.False(t, ok)
	assert.Equal(t, "", id)
}
