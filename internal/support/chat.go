package support

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/almarky/almarky-backend/internal/catalog"
	"github.com/almarky/almarky-backend/pkg/config"
	pkgerrors "github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
)

const defaultModel = "gemini-2.0-flash"

// ChatTurn is one prior exchange supplied by the client.
type ChatTurn struct {
	Role string `json:"role" validate:"required,oneof=user model"`
	Text string `json:"text" validate:"required"`
}

// ChatRequest carries the customer message plus client-held history.
type ChatRequest struct {
	Message string     `json:"message" validate:"required,max=2000"`
	History []ChatTurn `json:"history" validate:"dive"`
}

// ChatResponse is the assistant reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type productLister interface {
	List(ctx context.Context) []catalog.Product
}

// Service answers storefront support questions with a catalog-grounded model.
type Service interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type service struct {
	generator  contentGenerator
	products   productLister
	model      string
	maxHistory int
	logg       *logger.Logger
}

// ServiceParams bundles the dependencies required to build the support service.
type ServiceParams struct {
	Config  config.SupportConfig
	Catalog catalog.Service
	Logger  *logger.Logger
}

type genaiModels struct {
	client *genai.Client
}

func (g genaiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, cfg)
}

func NewService(ctx context.Context, params ServiceParams) (Service, error) {
	if params.Config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: params.Config.GeminiAPIKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := params.Config.Model
	if model == "" {
		model = defaultModel
	}
	maxHistory := params.Config.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 20
	}

	return &service{
		generator:  genaiModels{client: client},
		products:   params.Catalog,
		model:      model,
		maxHistory: maxHistory,
		logg:       params.Logger,
	}, nil
}

func (s *service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is required")
	}

	// List falls back to cache and seed data, it never fails the chat.
	products := s.products.List(ctx)

	contents := s.buildContents(req.History, message)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(products), genai.RoleUser),
	}

	resp, err := s.generator.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "support model unavailable")
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "support model returned an empty reply")
	}
	return &ChatResponse{Reply: reply}, nil
}

// buildContents folds prior turns plus the new message into the model input,
// keeping only the most recent turns.
func (s *service) buildContents(history []ChatTurn, message string) []*genai.Content {
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, genai.Role(role)))
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}

// systemPrompt grounds the assistant in the live catalog so answers quote
// real names, prices, and stock rather than invented ones.
func systemPrompt(products []catalog.Product) string {
	var b strings.Builder
	b.WriteString("You are the customer support assistant for Almarky, a Pakistani online store. ")
	b.WriteString("Answer briefly and politely in the customer's language (English or Urdu). ")
	b.WriteString("All prices are in Pakistani Rupees (PKR) and every order is paid cash on delivery. ")
	b.WriteString("Orders can be tracked with the order id plus the phone number used at checkout. ")
	b.WriteString("If a question needs account or payment changes, ask the customer to contact the store directly. ")
	b.WriteString("Only discuss products from the catalog below; say so when an item is not listed.\n\n")
	b.WriteString("Current catalog:\n")
	if len(products) == 0 {
		b.WriteString("(catalog temporarily unavailable)\n")
		return b.String()
	}
	for _, p := range products {
		stock := "in stock"
		if !p.InStock {
			stock = "out of stock"
		}
		b.WriteString(fmt.Sprintf("- %s (Rs. %d, %s, %s", p.Name, p.Price, p.Category, stock))
		if p.DiscountPercentage > 0 {
			b.WriteString(fmt.Sprintf(", %d%% off Rs. %d", p.DiscountPercentage, p.OriginalPrice))
		}
		if len(p.Colors) > 0 {
			b.WriteString(", colors: " + strings.Join(p.Colors, "/"))
		}
		if p.DeliveryCharge > 0 {
			b.WriteString(fmt.Sprintf(", delivery Rs. %d", p.DeliveryCharge))
		}
		b.WriteString(")\n")
	}
	return b.String()
}
