package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/action"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/eligibility"
	"github.com/opensource-finance/kestrel/internal/portfolio"
	"github.com/opensource-finance/kestrel/internal/ranking"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/reward"
	"github.com/opensource-finance/kestrel/internal/trigger"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds HTTP handlers and their dependencies.
//
// The catalog and the engines derived from it swap together under mu,
// so a reload never leaves a request scoring against a half-replaced
// catalog.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	cooldown  domain.CooldownStore
	screener  *eligibility.Screener
	selector  *action.Selector
	engineCfg domain.EngineConfig
	version   string

	mu         sync.RWMutex
	catalog    *catalog.Catalog
	calculator *reward.Calculator
	optimizer  *portfolio.Optimizer
}

// NewHandler creates a new API handler.
func NewHandler(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	cooldown domain.CooldownStore,
	screener *eligibility.Screener,
	cat *catalog.Catalog,
	engineCfg domain.EngineConfig,
	version string,
) *Handler {
	h := &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		cooldown:  cooldown,
		screener:  screener,
		selector:  action.NewSelector(),
		engineCfg: engineCfg,
		version:   version,
	}
	h.setCatalog(cat)
	return h
}

func (h *Handler) setCatalog(cat *catalog.Catalog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.catalog = cat
	h.calculator = reward.NewCalculator(cat, h.engineCfg.BaselineMonthlySpend)
	h.optimizer = portfolio.NewOptimizer(cat)
}

// engines returns a consistent snapshot of the catalog-derived engines.
func (h *Handler) engines() (*catalog.Catalog, *reward.Calculator, *portfolio.Optimizer) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.catalog, h.calculator, h.optimizer
}

// rankerFor builds a ranking engine over the catalog, honoring the
// configured jitter setting.
func (h *Handler) rankerFor(cat *catalog.Catalog) *ranking.Engine {
	if h.engineCfg.JitterEnabled {
		return ranking.NewEngineWithJitter(cat, h.engineCfg.RankingSeed)
	}
	return ranking.NewEngine(cat)
}

func (h *Handler) cooldownTTL() time.Duration {
	minutes := h.engineCfg.CooldownMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// Health returns service health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks that all backing services are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			checks["repository"] = err.Error()
			healthy = false
		} else {
			checks["repository"] = "ok"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		} else {
			checks["cache"] = "ok"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			checks["eventBus"] = err.Error()
			healthy = false
		} else {
			checks["eventBus"] = "ok"
		}
	}

	cat, _, _ := h.engines()
	checks["catalog"] = fmt.Sprintf("%d cards", cat.Len())

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  healthy,
		"checks": checks,
	})
}

// transactionRequest is the common transaction payload for the scoring
// endpoints.
type transactionRequest struct {
	Amount        float64 `json:"amount"`
	Category      string  `json:"category"`
	CurrentCardID string  `json:"currentCardId,omitempty"`
}

func (t *transactionRequest) validate() error {
	if t.Amount < 0 {
		return fmt.Errorf("amount must be >= 0")
	}
	if t.Category == "" {
		return fmt.Errorf("category is required")
	}
	return nil
}

// AnalyzeTransaction scores one transaction against the full catalog.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transaction transactionRequest `json:"transaction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Transaction.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, calc, _ := h.engines()
	analysis, err := calc.AnalyzeTransaction(req.Transaction.Amount, req.Transaction.Category, req.Transaction.CurrentCardID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// TriggerClassify decides whether a transaction should surface a
// recommendation, honoring the per-user cooldown window.
func (h *Handler) TriggerClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string             `json:"userId"`
		Transaction  transactionRequest `json:"transaction"`
		OwnedCardIDs []string           `json:"ownedCardIds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := req.Transaction.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	// Throttle before any scoring work.
	if h.cooldown != nil {
		armed, err := h.cooldown.Armed(ctx, req.UserID)
		if err != nil {
			slog.Warn("cooldown check failed, proceeding",
				"user_id", req.UserID,
				"error", err,
			)
		} else if armed {
			writeJSON(w, http.StatusOK, trigger.Cooldown())
			return
		}
	}

	_, calc, _ := h.engines()
	analysis, err := calc.AnalyzeTransaction(req.Transaction.Amount, req.Transaction.Category, req.Transaction.CurrentCardID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := trigger.Classify(analysis)

	if result.Recommend {
		if h.cooldown != nil {
			if err := h.cooldown.Arm(ctx, req.UserID, h.cooldownTTL()); err != nil {
				slog.Warn("failed to arm cooldown",
					"user_id", req.UserID,
					"error", err,
				)
			}
		}

		// Hand the analysis to the async pipeline.
		if h.bus != nil {
			payload, _ := json.Marshal(worker.AnalyzedMessage{
				UserID:       req.UserID,
				TraceID:      GetTraceID(ctx),
				Analysis:     analysis,
				OwnedCardIDs: req.OwnedCardIDs,
			})
			if err := h.bus.Publish(ctx, domain.TopicTransactionAnalyzed, payload); err != nil {
				slog.Error("failed to publish analyzed transaction",
					"user_id", req.UserID,
					"error", err,
				)
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// SelectAction runs the action cascade over a transaction and persists
// the resulting recommendation.
func (h *Handler) SelectAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         string             `json:"userId"`
		Transaction    transactionRequest `json:"transaction"`
		OwnedCardIDs   []string           `json:"ownedCardIds,omitempty"`
		AnnualSpending map[string]float64 `json:"annualSpending,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Transaction.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	_, calc, _ := h.engines()
	analysis, err := calc.AnalyzeTransaction(req.Transaction.Amount, req.Transaction.Category, req.Transaction.CurrentCardID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rec := h.selector.Select(&action.Input{
		Analysis:       analysis,
		OwnedCardIDs:   req.OwnedCardIDs,
		AnnualSpending: req.AnnualSpending,
	})
	rec.ID = uuid.New().String()
	rec.UserID = req.UserID
	rec.CreatedAt = time.Now().UTC()

	if h.repo != nil && req.UserID != "" {
		if err := h.repo.SaveRecommendation(ctx, rec); err != nil {
			slog.Error("failed to save recommendation",
				"user_id", req.UserID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, rec)
}

// PersonalizedRanking screens the catalog for the applicant and ranks
// what remains against the spending pattern.
func (h *Handler) PersonalizedRanking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID          string                 `json:"userId"`
		SpendingPattern domain.SpendingPattern `json:"spendingPattern"`
		OwnedCardIDs    []string               `json:"ownedCardIds,omitempty"`
		Applicant       *domain.Applicant      `json:"applicant,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.SpendingPattern) == 0 {
		writeError(w, http.StatusBadRequest, "spendingPattern is required")
		return
	}

	cat, _, _ := h.engines()

	eligible := cat.Cards()
	if h.screener != nil {
		eligible = h.screener.Filter(eligible, req.Applicant)
	}
	if len(eligible) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"rankings": []domain.RankedCard{},
			"count":    0,
		})
		return
	}

	screened, err := catalog.FromCards(eligible)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ranked, err := h.rankerFor(screened).Rank(req.SpendingPattern, req.OwnedCardIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rankings": ranked,
		"count":    len(ranked),
	})
}

// EstimateRewards projects rewards for one card over a spending horizon.
func (h *Handler) EstimateRewards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID            string             `json:"cardId"`
		ProjectedSpending map[string]float64 `json:"projectedSpending"`
		HorizonMonths     int                `json:"horizonMonths,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CardID == "" {
		writeError(w, http.StatusBadRequest, "cardId is required")
		return
	}

	_, _, opt := h.engines()
	estimate, err := opt.EstimateRewards(req.CardID, req.ProjectedSpending, req.HorizonMonths)
	if err != nil {
		if errors.Is(err, portfolio.ErrCardNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, estimate)
}

// OptimizePortfolio reviews the user's portfolio for add/switch moves.
func (h *Handler) OptimizePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentCards    []string               `json:"currentCards"`
		SpendingPattern domain.SpendingPattern `json:"spendingPattern"`
		MaxCards        int                    `json:"maxCards,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.CurrentCards) == 0 {
		writeError(w, http.StatusBadRequest, "currentCards is required")
		return
	}

	_, _, opt := h.engines()
	review, err := opt.Review(req.CurrentCards, req.SpendingPattern, req.MaxCards)
	if err != nil {
		if errors.Is(err, portfolio.ErrNoOwnedCards) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, review)
}

// ListCards returns the in-memory catalog.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cat, _, _ := h.engines()
	cards := cat.Cards()
	writeJSON(w, http.StatusOK, map[string]any{
		"cards": cards,
		"count": len(cards),
	})
}

// GetCard returns one catalog card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	cat, _, _ := h.engines()
	card, ok := cat.Get(cardID)
	if !ok {
		writeError(w, http.StatusNotFound, "card not found: "+cardID)
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// CreateCard stores a new card. The serving catalog picks it up on the
// next reload.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	h.upsertCard(w, r, "")
}

// UpdateCard stores changes to an existing card.
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	h.upsertCard(w, r, chi.URLParam(r, "cardID"))
}

func (h *Handler) upsertCard(w http.ResponseWriter, r *http.Request, cardID string) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "card persistence is not configured")
		return
	}

	var card domain.Card
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cardID != "" {
		card.ID = cardID
	}
	if card.ID == "" || card.Issuer == "" {
		writeError(w, http.StatusBadRequest, "cardId and issuer are required")
		return
	}
	switch card.RewardType {
	case domain.RewardCashback, domain.RewardPoints, domain.RewardMiles:
	default:
		writeError(w, http.StatusBadRequest, "rewardType must be cashback, points, or miles")
		return
	}
	if card.BonusCategories == nil {
		card.BonusCategories = map[string]float64{}
	}
	card.UpdatedAt = time.Now().UTC()

	if err := h.repo.SaveCard(r.Context(), &card); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"card":    card,
		"message": "Card saved. Call POST /api/v1/cards/reload to apply changes.",
	})
}

// DeleteCard removes a stored card.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "card persistence is not configured")
		return
	}

	cardID := chi.URLParam(r, "cardID")
	if err := h.repo.DeleteCard(r.Context(), cardID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "card not found: "+cardID)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Card deleted. Call POST /api/v1/cards/reload to apply changes.",
	})
}

// ReloadCards rebuilds the serving catalog from stored cards.
func (h *Handler) ReloadCards(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "card persistence is not configured")
		return
	}

	cards, err := h.repo.ListCards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cat, err := catalog.FromCards(cards)
	if err != nil {
		if errors.Is(err, catalog.ErrEmpty) {
			writeError(w, http.StatusConflict, "refusing to reload an empty catalog")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.setCatalog(cat)

	slog.Info("catalog reloaded", "cards", cat.Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Catalog reloaded",
		"count":   cat.Len(),
	})
}

// ListScreens returns the currently loaded screen rules.
func (h *Handler) ListScreens(w http.ResponseWriter, r *http.Request) {
	rules := h.screener.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"screens": rules,
		"count":   len(rules),
	})
}

// CreateScreen validates, stores, and loads a new screen rule.
func (h *Handler) CreateScreen(w http.ResponseWriter, r *http.Request) {
	var rule domain.ScreenRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rule.ID == "" || rule.Expression == "" {
		writeError(w, http.StatusBadRequest, "id and expression are required")
		return
	}

	if err := h.screener.ValidateRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if h.repo != nil {
		if err := h.repo.SaveScreenRule(r.Context(), &rule); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if rule.Enabled {
		if err := h.screener.LoadRule(&rule); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, rule)
}

// GetScreen returns one stored screen rule.
func (h *Handler) GetScreen(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "screen persistence is not configured")
		return
	}

	screenID := chi.URLParam(r, "screenID")
	rule, err := h.repo.GetScreenRule(r.Context(), screenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "screen not found: "+screenID)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// ReloadScreens swaps the loaded screen set from stored rules.
func (h *Handler) ReloadScreens(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "screen persistence is not configured")
		return
	}

	rules, err := h.repo.ListScreenRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.screener.ReloadRules(rules); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("screens reloaded", "screens", h.screener.ScreenCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Screens reloaded",
		"count":   h.screener.ScreenCount(),
	})
}

// UserRecommendations returns a user's recent recommendation history.
func (h *Handler) UserRecommendations(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "recommendation persistence is not configured")
		return
	}

	userID := chi.URLParam(r, "userID")

	since := time.Now().Add(-30 * 24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	recs, err := h.repo.ListRecommendationsByUser(r.Context(), userID, since)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
