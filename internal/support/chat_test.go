package support

import (
	"context"
	"io"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/almarky/almarky-backend/internal/catalog"
	pkgerrors "github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
)

type fakeGenerator struct {
	reply        string
	err          error
	gotModel     string
	gotContents  []*genai.Content
	gotSystemTxt string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	if cfg != nil && cfg.SystemInstruction != nil {
		for _, part := range cfg.SystemInstruction.Parts {
			f.gotSystemTxt += part.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(f.reply, genai.RoleModel)},
		},
	}, nil
}

type fakeLister struct {
	products []catalog.Product
}

func (f *fakeLister) List(ctx context.Context) []catalog.Product {
	return f.products
}

func newChatService(t *testing.T, gen *fakeGenerator, lister *fakeLister) *service {
	t.Helper()
	return &service{
		generator:  gen,
		products:   lister,
		model:      defaultModel,
		maxHistory: 4,
		logg:       logger.New(logger.Options{ServiceName: "support-test", Output: io.Discard}),
	}
}

func TestChatGroundsPromptInCatalog(t *testing.T) {
	gen := &fakeGenerator{reply: "The Aurora Table Lamp costs Rs. 3600."}
	lister := &fakeLister{products: []catalog.Product{
		{
			ID: "almarky-aurora-lamp", Name: "Aurora Table Lamp",
			Price: 3600, OriginalPrice: 4500, DiscountPercentage: 20,
			Category: "Lighting", InStock: true,
			Colors: []string{"Warm White", "Blue"}, DeliveryCharge: 150,
		},
		{ID: "almarky-breeze-fan", Name: "Breeze Fan", Price: 5100, Category: "Cooling", InStock: false},
	}}
	svc := newChatService(t, gen, lister)

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "How much is the lamp?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Reply != gen.reply {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}

	for _, want := range []string{
		"Aurora Table Lamp",
		"Rs. 3600",
		"20% off Rs. 4500",
		"Warm White/Blue",
		"delivery Rs. 150",
		"out of stock",
	} {
		if !strings.Contains(gen.gotSystemTxt, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, gen.gotSystemTxt)
		}
	}
}

func TestChatClampsHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	svc := newChatService(t, gen, &fakeLister{})

	history := make([]ChatTurn, 10)
	for i := range history {
		history[i] = ChatTurn{Role: "user", Text: "old question"}
	}
	history[9] = ChatTurn{Role: "model", Text: "latest answer"}

	if _, err := svc.Chat(context.Background(), ChatRequest{Message: "and now?", History: history}); err != nil {
		t.Fatalf("chat: %v", err)
	}

	// Four retained turns plus the new message.
	if len(gen.gotContents) != 5 {
		t.Fatalf("expected 5 contents, got %d", len(gen.gotContents))
	}
	last := gen.gotContents[len(gen.gotContents)-1]
	if last.Role != string(genai.RoleUser) || last.Parts[0].Text != "and now?" {
		t.Fatalf("new message must come last, got %+v", last)
	}
	if gen.gotContents[3].Role != string(genai.RoleModel) {
		t.Fatalf("model turn role lost: %+v", gen.gotContents[3])
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc := newChatService(t, &fakeGenerator{reply: "ok"}, &fakeLister{})

	_, err := svc.Chat(context.Background(), ChatRequest{Message: "   "})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestChatMapsModelFailure(t *testing.T) {
	gen := &fakeGenerator{err: context.DeadlineExceeded}
	svc := newChatService(t, gen, &fakeLister{})

	_, err := svc.Chat(context.Background(), ChatRequest{Message: "hello"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY, got %v", err)
	}
}

func TestSystemPromptHandlesEmptyCatalog(t *testing.T) {
	prompt := systemPrompt(nil)
	if !strings.Contains(prompt, "catalog temporarily unavailable") {
		t.Fatalf("empty catalog not flagged:\n%s", prompt)
	}
}
