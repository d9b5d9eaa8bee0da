package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragbot/internal/connectors/filesystem"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/core/services"
	"github.com/custodia-labs/ragbot/internal/metrics"
	"github.com/custodia-labs/ragbot/internal/normalisers"
	"github.com/custodia-labs/ragbot/internal/postprocessors/chunker"
)

// watchDebounce is the quiet period before a watch re-index.
const watchDebounce = 500 * time.Millisecond

// Indexer is what the index command drives.
type Indexer interface {
	driving.IngestService
	Watch(ctx context.Context, path string, onReport func(*domain.IngestReport, error)) error
}

// The constructors below are package variables so tests can replace them.
var (
	// loadSettings resolves the effective settings for --config.
	loadSettings = func(path string) (domain.Settings, error) {
		wd, err := os.Getwd()
		if err != nil {
			return domain.Settings{}, fmt.Errorf("working directory: %w", err)
		}
		return file.LoadSettings(file.LoadOptions{ConfigPath: path, WorkDir: wd})
	}

	// openConfigStore opens the file written by 'config set'.
	openConfigStore = func(path string) (driven.ConfigStore, error) {
		var (
			store *file.ConfigStore
			err   error
		)
		if path != "" {
			store, err = file.OpenConfigStore(path)
		} else {
			store, err = file.NewConfigStore("")
		}
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	buildIngest = newIngest
	buildChat   = newChat
	runChecks   = ai.Check
)

// newIngest wires the ingest pipeline. The returned func releases the
// adapters.
func newIngest(ctx context.Context, s domain.Settings, force bool) (Indexer, func(), error) {
	embedder, err := ai.CreateAndValidateEmbeddingService(ctx, s.Embedding)
	if err != nil {
		return nil, nil, err
	}
	stack := &ai.Stack{Embedder: embedder}

	if stack.Index, err = ai.CreateVectorIndex(s.VectorDB); err != nil {
		stack.Close()
		return nil, nil, err
	}
	if stack.Manifest, err = ai.CreateManifestStore(s.StateDir); err != nil {
		stack.Close()
		return nil, nil, err
	}

	chunks, err := chunker.FromSettings(s.Index)
	if err != nil {
		stack.Close()
		return nil, nil, err
	}

	var sourceOpts []filesystem.Option
	if len(s.Index.Extensions) > 0 {
		sourceOpts = append(sourceOpts, filesystem.WithExtensions(s.Index.Extensions...))
	}
	source := filesystem.New(sourceOpts...)
	svc, err := services.NewIngestService(
		source,
		normalisers.NewDefaultRegistry(),
		chunks,
		embedder,
		stack.Index,
		s.Index,
		ai.Fingerprint(s.Embedding, embedder),
		services.WithManifest(stack.Manifest),
		services.WithWatcher(filesystem.NewWatcher(source, watchDebounce)),
		services.WithIngestMetrics(metrics.IngestRecorder{}),
		services.WithForce(force),
	)
	if err != nil {
		stack.Close()
		return nil, nil, err
	}
	return svc, stack.Close, nil
}

// newChat wires a chat session over the indexed collection.
func newChat(ctx context.Context, s domain.Settings, opts ...services.ChatOption) (driving.ChatService, func(), error) {
	embedder, err := ai.CreateAndValidateEmbeddingService(ctx, s.Embedding)
	if err != nil {
		return nil, nil, err
	}
	stack := &ai.Stack{Embedder: embedder}

	if stack.Index, err = ai.CreateVectorIndex(s.VectorDB); err != nil {
		stack.Close()
		return nil, nil, err
	}
	if stack.LLM, err = ai.CreateLLMService(s.LLM, metrics.ObserveLLM); err != nil {
		stack.Close()
		return nil, nil, err
	}
	if stack.Prompts, err = ai.CreatePromptStore(s.PromptsDir); err != nil {
		stack.Close()
		return nil, nil, err
	}

	instructions, err := stack.Prompts.Load(driven.PromptChatInstructions)
	if err != nil {
		stack.Close()
		return nil, nil, fmt.Errorf("load chat instructions: %w", err)
	}

	retriever := services.NewRetriever(embedder, stack.Index, s.Index.CollectionName,
		ai.Fingerprint(s.Embedding, embedder), s.Chat.K)
	composer := services.NewPromptComposer(instructions, s.Chat.MaxPromptChars, s.Chat.MaxHistoryTurns)

	opts = append([]services.ChatOption{services.WithTemperature(s.LLM.Temperature)}, opts...)
	chat := services.NewChatService(retriever, composer, stack.LLM, services.NewConversationMemory(),
		s.Index.CollectionName, s.Chat, opts...)
	return chat, stack.Close, nil
}
