package cloudinary

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestResourceTypeFor(t *testing.T) {
	require.Equal(t, "image", resourceTypeFor("scan.PDF"))
	require.Equal(t, "image", resourceTypeFor("glossary.png"))
	require.Equal(t, "raw", resourceTypeFor("answer.docx"))
	require.Equal(t, "raw", resourceTypeFor("notes"))
}

func TestBuildPublicID(t *testing.T) {
	raw := buildPublicID("submission-7-my answer.docx", true)
	require.True(t, strings.HasPrefix(raw, "submission-7-my-answer-"))
	require.True(t, strings.HasSuffix(raw, ".docx"))

	image := buildPublicID("scan.png", false)
	require.True(t, strings.HasPrefix(image, "scan-"))
	require.False(t, strings.Contains(image, "."))

	require.True(t, strings.HasPrefix(buildPublicID("???.txt", true), "attachment-"))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}
