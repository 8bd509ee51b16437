package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGitURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://github.com/example/vidgen.git", true},
		{"https://github.com/example/vidgen.git#v1.2", true},
		{"git@github.com:example/vidgen.git", true},
		{"ssh://git@host/repo", true},
		{"git://host/repo", true},
		{"https://example.com/context.tar.gz", false},
		{".", false},
		{"./docker", false},
		{"/srv/vidgen", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGitURL(tt.in))
		})
	}
}

func TestSplitGitRef(t *testing.T) {
	repo, ref := splitGitRef("https://h/r.git#main")
	assert.Equal(t, "https://h/r.git", repo)
	assert.Equal(t, "main", ref)

	repo, ref = splitGitRef("https://h/r.git")
	assert.Equal(t, "https://h/r.git", repo)
	assert.Empty(t, ref)
}
