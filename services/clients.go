package services

import (
	"fmt"
	"strings"

	"zkteco-hub/database"
	"zkteco-hub/models"
	"zkteco-hub/secrets"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CredentialCipher seals tenant webhook credentials at rest.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) string
	Mask(value string) string
}

// ClientService manages tenants. Responses never carry a credential, only
// its masked tail.
type ClientService struct {
	db              *database.Database
	cipher          CredentialCipher
	defaultAttempts int
	defaultDelayMs  int
	logger          zerolog.Logger
}

func NewClientService(db *database.Database, cipher CredentialCipher, defaultAttempts, defaultDelayMs int,
	logger zerolog.Logger) *ClientService {
	return &ClientService{
		db:              db,
		cipher:          cipher,
		defaultAttempts: defaultAttempts,
		defaultDelayMs:  defaultDelayMs,
		logger:          logger.With().Str("component", "client_service").Logger(),
	}
}

func (cs *ClientService) toResponse(c *models.Client) models.ClientResponse {
	return models.ClientResponse{
		Client:       *c,
		APIKeyMasked: cs.cipher.Mask(c.APIKey),
		HasAPIKey:    c.APIKey != "",
	}
}

// seal encrypts a submitted credential. Blank input clears it.
func (cs *ClientService) seal(apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", nil
	}
	sealed, err := cs.cipher.Encrypt(apiKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt api key: %w", err)
	}
	return sealed, nil
}

func (cs *ClientService) Create(req *models.ClientRequest) (*models.ClientResponse, error) {
	client := &models.Client{
		ClientCode:    strings.TrimSpace(req.ClientID),
		Name:          strings.TrimSpace(req.Name),
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
		Active:        true,
		RetryAttempts: cs.defaultAttempts,
		RetryDelayMs:  cs.defaultDelayMs,
	}
	if req.Active != nil {
		client.Active = *req.Active
	}
	if req.ForwardingEnabled != nil {
		client.ForwardingEnabled = *req.ForwardingEnabled
	}
	if req.ForwardURL != nil {
		client.ForwardURL = strings.TrimSpace(*req.ForwardURL)
	}
	if req.RetryAttempts != nil {
		client.RetryAttempts = *req.RetryAttempts
	}
	if req.RetryDelayMs != nil {
		client.RetryDelayMs = *req.RetryDelayMs
	}
	if req.APIKey != nil {
		sealed, err := cs.seal(*req.APIKey)
		if err != nil {
			return nil, err
		}
		client.APIKey = sealed
	}

	var created *models.Client
	err := cs.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = cs.db.ClientRepo.CreateClient(tx, client)
		return err
	})
	if err != nil {
		return nil, err
	}

	cs.logger.Info().Uint("client_id", created.ID).Str("client_code", created.ClientCode).Msg("Client created")
	resp := cs.toResponse(created)
	return &resp, nil
}

func (cs *ClientService) Get(id uint) (*models.ClientResponse, error) {
	client, err := cs.db.ClientRepo.GetClient(id)
	if err != nil {
		return nil, err
	}
	resp := cs.toResponse(client)
	return &resp, nil
}

func (cs *ClientService) List() ([]models.ClientResponse, error) {
	clients, err := cs.db.ClientRepo.ListClients()
	if err != nil {
		return nil, err
	}
	out := make([]models.ClientResponse, len(clients))
	for i := range clients {
		out[i] = cs.toResponse(&clients[i])
	}
	return out, nil
}

// Update applies the fields present in req. A blank apiKey removes the
// stored credential.
func (cs *ClientService) Update(id uint, req *models.ClientPatchRequest) (*models.ClientResponse, error) {
	updates := make(map[string]interface{})
	if req.ClientID != nil {
		updates["client_code"] = strings.TrimSpace(*req.ClientID)
	}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.ContactEmail != nil {
		updates["contact_email"] = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		updates["contact_phone"] = *req.ContactPhone
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.ForwardingEnabled != nil {
		updates["forwarding_enabled"] = *req.ForwardingEnabled
	}
	if req.ForwardURL != nil {
		updates["forward_url"] = strings.TrimSpace(*req.ForwardURL)
	}
	if req.RetryAttempts != nil {
		updates["retry_attempts"] = *req.RetryAttempts
	}
	if req.RetryDelayMs != nil {
		updates["retry_delay_ms"] = *req.RetryDelayMs
	}
	if req.APIKey != nil {
		sealed, err := cs.seal(*req.APIKey)
		if err != nil {
			return nil, err
		}
		updates["api_key"] = sealed
	}

	if len(updates) == 0 {
		return cs.Get(id)
	}

	var updated *models.Client
	err := cs.db.UoW.Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = cs.db.ClientRepo.UpdateClient(tx, id, updates)
		return err
	})
	if err != nil {
		return nil, err
	}

	cs.logger.Info().Uint("client_id", id).Int("fields", len(updates)).Msg("Client updated")
	resp := cs.toResponse(updated)
	return &resp, nil
}

// Delete removes a tenant and the devices registered to it.
func (cs *ClientService) Delete(id uint) error {
	devices, err := cs.db.ClientRepo.CountDevices(id)
	if err != nil {
		return err
	}
	err = cs.db.UoW.Transaction(func(tx *gorm.DB) error {
		return cs.db.ClientRepo.DeleteClient(tx, id)
	})
	if err != nil {
		return err
	}
	cs.logger.Info().Uint("client_id", id).Int64("devices_removed", devices).Msg("Client deleted")
	return nil
}

// EncryptPlaintextKeys rewrites credentials stored before encryption was
// enabled. It returns how many rows were sealed.
func (cs *ClientService) EncryptPlaintextKeys() (int, error) {
	clients, err := cs.db.ClientRepo.ListClients()
	if err != nil {
		return 0, err
	}

	sealed := 0
	for _, c := range clients {
		if c.APIKey == "" || secrets.IsEncrypted(c.APIKey) {
			continue
		}
		value, err := cs.cipher.Encrypt(c.APIKey)
		if err != nil {
			return sealed, fmt.Errorf("failed to encrypt api key of client %d: %w", c.ID, err)
		}
		err = cs.db.UoW.Transaction(func(tx *gorm.DB) error {
			_, err := cs.db.ClientRepo.UpdateClient(tx, c.ID, map[string]interface{}{"api_key": value})
			return err
		})
		if err != nil {
			return sealed, err
		}
		sealed++
	}
	if sealed > 0 {
		cs.logger.Info().Int("count", sealed).Msg("Encrypted plaintext client API keys")
	}
	return sealed, nil
}
