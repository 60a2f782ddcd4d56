package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSkill = `---
name: review
description: Review a diff for bugs
allowed-tools:
  - bash
  - read
---
# Review

Do the review.
`

func TestParseSkillMetadataValid(t *testing.T) {
	m, err := ParseSkillMetadata([]byte(validSkill), "skills/review/SKILL.md", "review")
	require.NoError(t, err)
	assert.Equal(t, "review", m.Name)
	assert.Equal(t, "Review a diff for bugs", m.Description)
	assert.Equal(t, []string{"bash", "read"}, m.AllowedTools)
	assert.Equal(t, "skills/review/SKILL.md", m.Path)
}

func TestParseSkillMetadataDefaultsNameToDirectory(t *testing.T) {
	body := "---\ndescription: something\n---\nbody"
	m, err := ParseSkillMetadata([]byte(body), "skills/foo/SKILL.md", "foo")
	require.NoError(t, err)
	assert.Equal(t, "foo", m.Name)
}

func TestParseSkillMetadataRejectsNameMismatch(t *testing.T) {
	_, err := ParseSkillMetadata([]byte(validSkill), "skills/other/SKILL.md", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must match directory")
}

func TestParseSkillMetadataMissingFrontmatter(t *testing.T) {
	_, err := ParseSkillMetadata([]byte("just a plain markdown file"), "skills/foo/SKILL.md", "foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no frontmatter")
}

func TestParseSkillMetadataUnclosedFrontmatter(t *testing.T) {
	_, err := ParseSkillMetadata([]byte("---\nname: foo\n"), "skills/foo/SKILL.md", "foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not closed")
}

func TestGetSkillBodyStripsFrontmatter(t *testing.T) {
	body := GetSkillBody([]byte(validSkill))
	assert.Equal(t, "# Review\n\nDo the review.", body)
}

func TestGetSkillBodyReturnsWholeContentWithoutFrontmatter(t *testing.T) {
	body := GetSkillBody([]byte("no frontmatter here"))
	assert.Equal(t, "no frontmatter here", body)
}
