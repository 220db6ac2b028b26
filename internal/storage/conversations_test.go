// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// CONVERSATION STORE TESTS
// =============================================================================

func TestConversationStore_AppendAndReload(t *testing.T) {
	kv := NewMemoryKV()
	store := NewConversationStore(kv, nil)

	want := []model.Turn{
		model.NewTurn(model.RoleUser, "Hello"),
		model.NewTurn(model.RoleAssistant, "Hi there!"),
		model.NewErrorAnnotation("engine crashed"),
	}
	for _, turn := range want {
		require.NoError(t, store.Append(turn))
	}

	if diff := cmp.Diff(want, store.Turns()); diff != "" {
		t.Errorf("Turns() mismatch (-want +got):\n%s", diff)
	}

	reloaded := NewConversationStore(kv, nil)
	if diff := cmp.Diff(want, reloaded.Load()); diff != "" {
		t.Errorf("Load() after reopen mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, reloaded.Turns()[2].Annotation)
}

func TestConversationStore_ResetThenLoad(t *testing.T) {
	kv := NewMemoryKV()
	store := NewConversationStore(kv, nil)
	require.NoError(t, store.Append(model.NewTurn(model.RoleUser, "one")))
	require.NoError(t, store.Append(model.NewTurn(model.RoleAssistant, "two")))

	require.NoError(t, store.Reset())

	got := store.Load()
	if got == nil || len(got) != 0 {
		t.Errorf("Load() after Reset = %#v, want empty slice", got)
	}
	assert.Empty(t, NewConversationStore(kv, nil).Turns())
}

func TestConversationStore_LoadCorrupt(t *testing.T) {
	for _, blob := range []string{"{", `{"role":"user"}`, "42", `"text"`} {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(KeyTranscript, []byte(blob)))

		if got := NewConversationStore(kv, nil).Turns(); len(got) != 0 {
			t.Errorf("blob %q: Turns() = %v, want empty", blob, got)
		}
	}
}

func TestConversationStore_LoadDropsUnknownRoles(t *testing.T) {
	kv := NewMemoryKV()
	blob := `[{"role":"user","content":"a"},{"role":"tool","content":"b"},{"role":"assistant","content":"c"}]`
	require.NoError(t, kv.Set(KeyTranscript, []byte(blob)))

	got := NewConversationStore(kv, nil).Turns()
	want := []model.Turn{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Turns() mismatch (-want +got):\n%s", diff)
	}
}

func TestConversationStore_AppendRejectsInvalidRole(t *testing.T) {
	store := NewConversationStore(NewMemoryKV(), nil)
	err := store.Append(model.Turn{Role: "tool", Content: "x"})
	assert.Error(t, err)
	assert.Equal(t, 0, len(store.Turns()))
}

func TestConversationStore_AppendWriteFailure(t *testing.T) {
	store := NewConversationStore(failingKV{NewMemoryKV()}, nil)

	err := store.Append(model.NewTurn(model.RoleUser, "hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, len(store.Turns()))
}

func TestConversationStore_TurnsIsCopy(t *testing.T) {
	store := NewConversationStore(NewMemoryKV(), nil)
	require.NoError(t, store.Append(model.NewTurn(model.RoleUser, "original")))

	turns := store.Turns()
	turns[0].Content = "mutated"

	if got := store.Turns()[0].Content; got != "original" {
		t.Errorf("stored content = %q, want %q", got, "original")
	}
}
