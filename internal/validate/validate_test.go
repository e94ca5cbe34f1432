package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"with id", `{"id":"abc-1","documents":[{"doc_url":"http://x/a.pdf","doc_type":"facesheet"}]}`, false},
		{"without id", `{"documents":[{"doc_url":"http://x/a.pdf"}]}`, false},
		{"null id and type", `{"id":null,"documents":[{"doc_url":"http://x/a.pdf","doc_type":null}]}`, false},
		{"extra fields ignored", `{"documents":[{"doc_url":"http://x/a.pdf","pages":3}],"source":"ui"}`, false},
		{"malformed", `{"documents":`, true},
		{"not an object", `[1,2]`, true},
		{"missing documents", `{"id":"abc"}`, true},
		{"empty documents", `{"documents":[]}`, true},
		{"missing doc_url", `{"documents":[{"doc_type":"poc"}]}`, true},
		{"empty doc_url", `{"documents":[{"doc_url":""}]}`, true},
		{"numeric doc_url", `{"documents":[{"doc_url":5}]}`, true},
		{"path traversal id", `{"id":"../etc","documents":[{"doc_url":"http://x/a.pdf"}]}`, true},
		{"slash in id", `{"id":"a/b","documents":[{"doc_url":"http://x/a.pdf"}]}`, true},
		{"empty id", `{"id":"","documents":[{"doc_url":"http://x/a.pdf"}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Upload([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUploadDecodes(t *testing.T) {
	req, err := Upload([]byte(`{"id":"abc","documents":[{"doc_url":"http://x/a.pdf","doc_type":"F2F"},{"doc_url":"s3://b/k.pdf"}]}`))
	require.NoError(t, err)

	assert.Equal(t, "abc", req.ID)
	require.Len(t, req.Documents, 2)
	assert.Equal(t, "F2F", req.Documents[0].DocType)
	assert.Equal(t, "s3://b/k.pdf", req.Documents[1].DocURL)
}

func TestUploadIDLength(t *testing.T) {
	long := strings.Repeat("a", 129)
	_, err := Upload([]byte(`{"id":"` + long + `","documents":[{"doc_url":"http://x/a.pdf"}]}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Upload([]byte(`{"id":"` + long[:128] + `","documents":[{"doc_url":"http://x/a.pdf"}]}`))
	assert.NoError(t, err)
}

func TestClassification(t *testing.T) {
	assert.NoError(t, Classification([]byte(`{"facesheet":1,"f2f":0,"poc":2,"documents":[{"index":0,"type":"facesheet","start_page":1,"end_page":2,"confidence":0.9}]}`)))
	assert.NoError(t, Classification([]byte(`{"facesheet":0,"f2f":0,"poc":0}`)))

	assert.ErrorIs(t, Classification([]byte(`{"facesheet":1}`)), ErrInvalid)
	assert.ErrorIs(t, Classification([]byte(`{"facesheet":-1,"f2f":0,"poc":0}`)), ErrInvalid)
	assert.ErrorIs(t, Classification([]byte(`{"facesheet":"one","f2f":0,"poc":0}`)), ErrInvalid)
	assert.ErrorIs(t, Classification([]byte(`{"facesheet":1.5,"f2f":0,"poc":0}`)), ErrInvalid)
	assert.ErrorIs(t, Classification([]byte(`<html>`)), ErrInvalid)
}

func TestExtraction(t *testing.T) {
	assert.NoError(t, Extraction([]byte(`{"patient":{"name":"x"}}`)))
	assert.ErrorIs(t, Extraction([]byte(`["not","an","object"]`)), ErrInvalid)
	assert.ErrorIs(t, Extraction([]byte(`nope`)), ErrInvalid)
}
