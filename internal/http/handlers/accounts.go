package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/blockpass/accounts-api/internal/auth"
	"github.com/blockpass/accounts-api/internal/http/respond"
	"github.com/blockpass/accounts-api/internal/models"
	"github.com/blockpass/accounts-api/internal/storage"
)

// AccountHandler owns the account CRUD and login endpoints.
type AccountHandler struct {
	store  storage.AccountStore
	hasher auth.PasswordHasher
	tokens *auth.TokenManager
	log    *slog.Logger
}

// NewAccountHandler constructs the handler.
func NewAccountHandler(store storage.AccountStore, hasher auth.PasswordHasher, tokens *auth.TokenManager, log *slog.Logger) *AccountHandler {
	return &AccountHandler{store: store, hasher: hasher, tokens: tokens, log: log}
}

type createAccountRequest struct {
	Profile       string  `json:"profile"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	WalletAddress *string `json:"walletAddress"`
}

func (r createAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Profile, validation.Required,
			validation.In(string(models.RoleCompany), string(models.RoleIndividual), string(models.RoleAdmin))),
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
	)
}

type updateAccountRequest struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	Password      string  `json:"password"`
	WalletAddress *string `json:"walletAddress"`
}

func (r updateAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Password, validation.By(optionalPassword)),
	)
}

// optionalPassword enforces the password length only when a replacement is
// actually supplied; blank means "keep the stored secret" and passes through.
func optionalPassword(value any) error {
	password, _ := value.(string)
	if strings.TrimSpace(password) == "" {
		return nil
	}
	return validation.Validate(password, validation.Length(6, 72))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type accountSummary struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Email   string      `json:"email"`
	Profile models.Role `json:"profile"`
}

type loginResponse struct {
	Message string         `json:"message"`
	Account accountSummary `json:"account"`
	Token   string         `json:"token"`
}

// Create handles POST /api/accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := req.Validate(); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := models.ParseRole(req.Profile)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	passwordHash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.log.Error("hash password failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	account := models.NewAccount(profile, req.Name, req.Email, passwordHash, req.WalletAddress)
	created, err := h.store.Insert(r.Context(), account)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusConflict, "email already registered")
			return
		}
		h.writeStoreError(w, err, "create account")
		return
	}

	respond.Message(w, http.StatusCreated, "account created", created)
}

// Login handles POST /api/accounts/login. Unknown email and wrong password
// both return 400, matching the public API contract.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := req.Validate(); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.store.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusBadRequest, "account not found")
			return
		}
		h.writeStoreError(w, err, "login lookup")
		return
	}
	if !h.hasher.Verify(req.Password, account.PasswordHash) {
		respond.Error(w, http.StatusBadRequest, "incorrect password")
		return
	}

	token, err := h.tokens.Issue(account.ID, account.Profile)
	if err != nil {
		h.log.Error("issue token failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	respond.JSON(w, http.StatusOK, loginResponse{
		Message: "login successful",
		Account: accountSummary{
			ID:      account.ID,
			Name:    account.Name,
			Email:   account.Email,
			Profile: account.Profile,
		},
		Token: token,
	})
}

// List handles GET /api/accounts (admin only).
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "list accounts")
		return
	}
	respond.JSON(w, http.StatusOK, accounts)
}

// Get handles GET /api/accounts/{id} (any authenticated role).
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	account, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "account not found")
			return
		}
		h.writeStoreError(w, err, "get account")
		return
	}
	respond.JSON(w, http.StatusOK, account)
}

// Update handles PUT /api/accounts/{id} (admin only). The profile field is
// immutable and ignored if supplied; a blank password leaves the stored
// secret untouched.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := req.Validate(); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	upd := storage.AccountUpdate{WalletAddress: req.WalletAddress}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name := strings.TrimSpace(*req.Name)
		upd.Name = &name
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		email := models.NormalizeEmail(*req.Email)
		upd.Email = &email
	}
	if strings.TrimSpace(req.Password) != "" {
		passwordHash, err := h.hasher.Hash(req.Password)
		if err != nil {
			h.log.Error("hash password failed", "error", err)
			respond.Error(w, http.StatusInternalServerError, "failed to update account")
			return
		}
		upd.PasswordHash = &passwordHash
	}

	account, err := h.store.Update(r.Context(), id, upd)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			respond.Error(w, http.StatusNotFound, "account not found")
		case errors.Is(err, storage.ErrAlreadyExists):
			respond.Error(w, http.StatusConflict, "email already registered")
		default:
			h.writeStoreError(w, err, "update account")
		}
		return
	}
	respond.Message(w, http.StatusOK, "account updated", account)
}

// Delete handles DELETE /api/accounts/{id} (admin only).
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "account not found")
			return
		}
		h.writeStoreError(w, err, "delete account")
		return
	}
	respond.Message(w, http.StatusOK, "account deleted", nil)
}

// pathID extracts and validates the {id} path variable before any storage
// call is made.
func (h *AccountHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		respond.Error(w, http.StatusBadRequest, "account id not provided")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid account id")
		return "", false
	}
	return id, true
}

func (h *AccountHandler) writeStoreError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, storage.ErrUnavailable) {
		h.log.Error(op+" timed out", "error", err)
		respond.Error(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	h.log.Error(op+" failed", "error", err)
	respond.Error(w, http.StatusInternalServerError, "internal error")
}
