package workspace

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/licensing/v1"
	"google.golang.org/api/option"

	"github.com/vipul43/saas-bridge/internal/config"
)

// LicenseAssignment is one user's license for a Workspace product SKU.
type LicenseAssignment struct {
	UserID      string `json:"userId"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	SkuID       string `json:"skuId"`
	SkuName     string `json:"skuName"`
}

type Client struct {
	service    *licensing.Service
	customerID string
	productID  string
}

// NewClient authenticates with a service account key that has domain-wide
// delegation, impersonating cfg.AdminEmail.
func NewClient(ctx context.Context, cfg config.GoogleConfig) (*Client, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Google credentials: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, licensing.AppsLicensingScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Google credentials: %w", err)
	}
	jwtConfig.Subject = cfg.AdminEmail

	return NewClientWithOptions(ctx, cfg.CustomerID, cfg.ProductID, option.WithTokenSource(jwtConfig.TokenSource(ctx)))
}

// NewClientWithOptions builds a client from explicit API options.
func NewClientWithOptions(ctx context.Context, customerID, productID string, opts ...option.ClientOption) (*Client, error) {
	svc, err := licensing.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create licensing service: %w", err)
	}
	return &Client{
		service:    svc,
		customerID: customerID,
		productID:  productID,
	}, nil
}

// ListLicenses returns every license assignment of the configured product,
// following page tokens until exhausted.
func (c *Client) ListLicenses(ctx context.Context) ([]LicenseAssignment, error) {
	var out []LicenseAssignment

	call := c.service.LicenseAssignments.ListForProduct(c.productID, c.customerID).MaxResults(1000)
	err := call.Pages(ctx, func(page *licensing.LicenseAssignmentList) error {
		for _, item := range page.Items {
			out = append(out, LicenseAssignment{
				UserID:      item.UserId,
				ProductID:   item.ProductId,
				ProductName: item.ProductName,
				SkuID:       item.SkuId,
				SkuName:     item.SkuName,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list license assignments: %w", err)
	}

	log.Debug().Str("product_id", c.productID).Int("count", len(out)).Msg("Listed Workspace licenses")
	return out, nil
}
