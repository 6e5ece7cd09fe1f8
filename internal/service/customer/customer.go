// internal/service/customer/customer.go
package customer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"frontdesk-service/internal/domain/customer"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/store"

	"go.uber.org/zap"
)

// localMobile is the canonical national mobile format: 0 followed by a 7 or 1
// prefix and eight digits.
var localMobile = regexp.MustCompile(`^0[17]\d{8}$`)

type IdentityResolver struct {
	customers   store.CustomerStore
	countryCode string
	logger      *zap.Logger
}

func NewIdentityResolver(customers store.CustomerStore, countryCode string, logger *zap.Logger) *IdentityResolver {
	return &IdentityResolver{
		customers:   customers,
		countryCode: countryCode,
		logger:      logger,
	}
}

// Resolve maps (name, phone) to a customer id, creating the customer on first
// sighting of the phone. An existing record is returned untouched.
func (r *IdentityResolver) Resolve(ctx context.Context, req customer.ResolveRequest) (string, error) {
	if err := ValidateIdentity(req.Name, req.Language); err != nil {
		return "", err
	}
	phone, err := r.NormalizePhone(req.Phone)
	if err != nil {
		return "", err
	}

	existing, err := r.customers.FindCustomerByPhone(ctx, phone)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return "", fmt.Errorf("failed to look up customer: %w", err)
	}

	c := &customer.Customer{
		Name:     strings.TrimSpace(req.Name),
		Phone:    phone,
		Language: req.Language,
	}
	if c.Language == "" {
		c.Language = customer.LanguagePrimary
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		c.Email = &email
	}

	err = r.customers.CreateCustomer(ctx, c)
	if errors.Is(err, xerrors.ErrDuplicateEntry) {
		// lost a race with a concurrent create for the same phone
		winner, ferr := r.customers.FindCustomerByPhone(ctx, phone)
		if ferr != nil {
			return "", fmt.Errorf("failed to re-read customer after conflict: %w", ferr)
		}
		r.logger.Debug("customer create conflict resolved", zap.String("customer_id", winner.ID))
		return winner.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	r.logger.Info("customer created", zap.String("customer_id", c.ID))
	return c.ID, nil
}

// NormalizePhone strips formatting, rewrites an international prefix to the
// local trunk prefix and checks the result against the national pattern.
func (r *IdentityResolver) NormalizePhone(raw string) (string, error) {
	return NormalizePhone(raw, r.countryCode)
}

func NormalizePhone(raw, countryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("phone: %w", xerrors.ErrMissingRequiredField)
	}

	var b strings.Builder
	for i, ch := range trimmed {
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '+' && i == 0:
		case ch == ' ', ch == '-', ch == '.', ch == '(', ch == ')':
		default:
			return "", fmt.Errorf("%q: %w", raw, xerrors.ErrInvalidPhone)
		}
	}
	phone := b.String()

	if countryCode != "" && strings.HasPrefix(phone, countryCode) && len(phone) > len(countryCode)+8 {
		phone = "0" + strings.TrimPrefix(phone, countryCode)
	}
	if !localMobile.MatchString(phone) {
		return "", fmt.Errorf("%q: %w", raw, xerrors.ErrInvalidPhone)
	}
	return phone, nil
}

// ValidateIdentity checks the non-phone identity fields.
func ValidateIdentity(name string, language customer.Language) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name: %w", xerrors.ErrMissingRequiredField)
	}
	if language != "" && !language.Valid() {
		return fmt.Errorf("language %q: %w", language, xerrors.ErrInvalidInput)
	}
	return nil
}
