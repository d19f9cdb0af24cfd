package permission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPrompter struct {
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (p *blockingPrompter) Prompt(key Key) (bool, bool) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	<-p.release
	return true, true
}

func TestSystemSceneAutoAllowed(t *testing.T) {
	b := New(&blockingPrompter{release: make(chan struct{})}, "system-scene")
	decision := b.Request("system-scene", Key{SceneOrRealm: "x", Permission: KindTeleport})
	assert.Equal(t, Allow, decision)
}

func TestRememberedDecisionSkipsPrompt(t *testing.T) {
	prompter := &blockingPrompter{release: make(chan struct{})}
	close(prompter.release) // first prompt resolves immediately
	b := New(prompter, "system-scene")

	key := Key{SceneOrRealm: "scene-1", Permission: KindTeleport}
	first := b.Request("scene-1", key)
	require.Equal(t, Allow, first)

	second := b.Request("scene-1", key)
	assert.Equal(t, Allow, second)

	prompter.mu.Lock()
	defer prompter.mu.Unlock()
	assert.Equal(t, 1, prompter.calls, "remembered decision must not re-prompt")
}

func TestCoalescesConcurrentIdenticalRequests(t *testing.T) {
	prompter := &blockingPrompter{release: make(chan struct{})}
	b := New(prompter, "system-scene")

	key := Key{SceneOrRealm: "scene-1", Permission: KindChangeRealm}

	var wg sync.WaitGroup
	results := make([]Decision, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.Request("scene-1", key)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(prompter.release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, Allow, r)
	}
	prompter.mu.Lock()
	defer prompter.mu.Unlock()
	assert.Equal(t, 1, prompter.calls, "identical pending requests must coalesce into one prompt")
}

func TestDenyPendingResolvesOutstandingPromptsToDeny(t *testing.T) {
	prompter := &blockingPrompter{release: make(chan struct{})}
	b := New(prompter, "system-scene")

	key := Key{SceneOrRealm: "scene-1", Permission: KindExternalURL}
	resultCh := make(chan Decision, 1)
	go func() {
		resultCh <- b.Request("scene-1", key)
	}()

	time.Sleep(20 * time.Millisecond)
	b.DenyPending()

	select {
	case result := <-resultCh:
		assert.Equal(t, Deny, result)
	case <-time.After(time.Second):
		t.Fatal("request did not resolve after DenyPending")
	}
}
