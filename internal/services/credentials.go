package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"catalog-sync-service/internal/clients/square"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/secrets"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Setting keys of the square category
const (
	keyEnabled              = "square_enabled"
	keyEnvironment          = "square_environment"
	keySyncFields           = "sync_fields"
	keyPriceSyncEnabled     = "price_sync_enabled"
	keyInventorySyncEnabled = "inventory_sync_enabled"
	keyAutoSyncEnabled      = "auto_sync_enabled"
	keySyncDirection        = "sync_direction"
	keySyncFrequency        = "sync_frequency"
	keyCategoryMapping      = "category_mapping"
	keyCurrency             = "currency"
	keyLastSync             = "last_sync"
	keySyncErrors           = "sync_errors"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// Credential names, stored as square_<env>_<name> or legacy square_<name>
const (
	credApplicationID       = "application_id"
	credLocationID          = "location_id"
	credAccessToken         = "access_token"
	credWebhookSignatureKey = "webhook_signature_key"
)

var (
	credentialNames   = []string{credApplicationID, credLocationID, credAccessToken, credWebhookSignatureKey}
	secretCredentials = map[string]bool{credAccessToken: true, credWebhookSignatureKey: true}
	environments      = []string{EnvironmentSandbox, EnvironmentProduction}

	defaultSyncFields = []string{"name", "description", "price", "category", "stock"}

	jsonSettings = map[string]bool{keySyncFields: true, keyCategoryMapping: true, keySyncErrors: true}
	boolSettings = map[string]bool{keyEnabled: true, keyAutoSyncEnabled: true, keyPriceSyncEnabled: true, keyInventorySyncEnabled: true}

	settingDescriptions = map[string]string{
		keyEnabled:              "Enable Square integration",
		keyEnvironment:          "Square environment (sandbox or production)",
		credApplicationID:       "Square Application ID from developer dashboard",
		credAccessToken:         "Square Access Token for API access",
		credLocationID:          "Square Location ID for inventory management",
		credWebhookSignatureKey: "Webhook signature key for secure callbacks",
		keyAutoSyncEnabled:      "Enable automatic synchronization",
		keySyncDirection:        "Synchronization direction (to_square, from_square, bidirectional)",
		keySyncFrequency:        "How often to sync automatically",
		keySyncFields:           "Fields to synchronize between systems",
		keyPriceSyncEnabled:     "Enable price synchronization",
		keyInventorySyncEnabled: "Enable inventory/stock synchronization",
		keyCategoryMapping:      "Mapping between local categories and Square categories",
		keyCurrency:             "Currency used for catalog prices",
	}
)

// SyncSettings is the immutable per-run configuration
type SyncSettings struct {
	Environment          string
	BaseURL              string
	AccessToken          string
	ApplicationID        string
	LocationID           string
	WebhookSignatureKey  string
	SyncFields           []string
	PriceSyncEnabled     bool
	InventorySyncEnabled bool
	Currency             string
}

// SyncsField reports whether a local field is configured for pushing
func (s *SyncSettings) SyncsField(field string) bool {
	for _, f := range s.SyncFields {
		if f == field {
			return true
		}
	}
	return false
}

// CredentialService resolves, stores, and masks integration settings
type CredentialService struct {
	settings        *repository.SettingsRepository
	store           secrets.Store
	baseURLOverride string
	logger          *logrus.Entry
}

// NewCredentialService creates a new credential service. store may be nil,
// in which case secrets can be read from legacy rows but never saved.
func NewCredentialService(settings *repository.SettingsRepository, store secrets.Store, baseURLOverride string, logger *logrus.Entry) *CredentialService {
	return &CredentialService{
		settings:        settings,
		store:           store,
		baseURLOverride: baseURLOverride,
		logger:          logger.WithField("component", "credentials"),
	}
}

// Resolve builds the settings for one run
func (s *CredentialService) Resolve(ctx context.Context) (*SyncSettings, error) {
	rows, err := s.settings.GetCategory(ctx, models.SettingsCategorySquare)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	env := normalizeEnvironment(rowValue(rows, keyEnvironment))
	resolved := &SyncSettings{
		Environment:          env,
		BaseURL:              square.BaseURLForEnvironment(env),
		ApplicationID:        s.credential(ctx, rows, env, credApplicationID),
		LocationID:           s.credential(ctx, rows, env, credLocationID),
		AccessToken:          s.credential(ctx, rows, env, credAccessToken),
		WebhookSignatureKey:  s.credential(ctx, rows, env, credWebhookSignatureKey),
		SyncFields:           decodeSyncFields(rows),
		PriceSyncEnabled:     rowBool(rows, keyPriceSyncEnabled, true),
		InventorySyncEnabled: rowBool(rows, keyInventorySyncEnabled, true),
		Currency:             strings.ToUpper(rowValueOr(rows, keyCurrency, "USD")),
	}
	if s.baseURLOverride != "" {
		resolved.BaseURL = s.baseURLOverride
	}

	if !rowBool(rows, keyEnabled, false) {
		return nil, &ConfigError{Reason: "integration is not enabled"}
	}
	if resolved.AccessToken == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("%s access token is missing", env)}
	}

	return resolved, nil
}

// credential reads the environment-prefixed value, then the legacy key.
// Secret values come from the secret store first; settings rows are only a
// fallback for data written before secrets moved out of the table.
func (s *CredentialService) credential(ctx context.Context, rows map[string]models.BusinessSetting, env, name string) string {
	prefixed := prefixedKey(env, name)
	legacy := legacyKey(name)

	if secretCredentials[name] {
		for _, key := range []string{prefixed, legacy} {
			if value := s.secretValue(ctx, key); value != "" {
				return value
			}
		}
	}

	if value := rowValue(rows, prefixed); value != "" {
		return value
	}
	return rowValue(rows, legacy)
}

func (s *CredentialService) secretValue(ctx context.Context, key string) string {
	if s.store == nil {
		return ""
	}
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to read secret, falling back to settings")
		return ""
	}
	if !ok {
		return ""
	}
	return value
}

// Save writes allowed settings and returns how many were stored. Non-empty
// secret values go to the secret store and leave an empty placeholder row;
// empty secret values are ignored so masked forms do not clear credentials.
func (s *CredentialService) Save(ctx context.Context, input map[string]interface{}) (int, error) {
	allowed := allowedSettingKeys()

	keys := make([]string, 0, len(input))
	for key := range input {
		if allowed[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	rows := make([]models.BusinessSetting, 0, len(keys))
	for _, key := range keys {
		value := input[key]

		if key == keyEnvironment {
			env, _ := value.(string)
			if env != EnvironmentSandbox && env != EnvironmentProduction {
				return 0, &ValidationError{Field: key, Message: "must be sandbox or production"}
			}
		}

		if isSecretKey(key) {
			secret, ok := value.(string)
			if !ok {
				return 0, &ValidationError{Field: key, Message: "must be a string"}
			}
			if secret == "" {
				continue
			}
			if s.store == nil {
				return 0, fmt.Errorf("no secret store configured for %s", key)
			}
			if err := s.store.Set(ctx, key, secret); err != nil {
				return 0, fmt.Errorf("failed to store secret %s: %w", key, err)
			}
			value = ""
		}

		encoded, settingType, err := encodeSetting(value)
		if err != nil {
			return 0, &ValidationError{Field: key, Message: err.Error()}
		}
		rows = append(rows, models.BusinessSetting{
			Category:     models.SettingsCategorySquare,
			SettingKey:   key,
			SettingValue: encoded,
			SettingType:  settingType,
			DisplayName:  displayName(key),
			Description:  describeSetting(key),
		})
	}

	if err := s.settings.UpsertMany(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to save settings: %w", err)
	}

	s.logger.WithField("settings_count", len(rows)).Info("Settings saved")
	return len(rows), nil
}

// View returns settings merged over defaults with secrets masked. Every
// secret key gets a <key>_present flag instead of its value.
func (s *CredentialService) View(ctx context.Context) (map[string]interface{}, error) {
	rows, err := s.settings.GetCategory(ctx, models.SettingsCategorySquare)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	view := map[string]interface{}{
		keyEnabled:              false,
		keyEnvironment:          EnvironmentSandbox,
		keyAutoSyncEnabled:      false,
		keySyncDirection:        "to_square",
		keySyncFrequency:        "manual",
		keySyncFields:           defaultSyncFields,
		keyPriceSyncEnabled:     true,
		keyInventorySyncEnabled: true,
		keyCategoryMapping:      map[string]interface{}{},
		keyCurrency:             "USD",
		keyLastSync:             nil,
		keySyncErrors:           []interface{}{},
	}
	for _, key := range credentialKeys() {
		view[key] = ""
	}

	for key, row := range rows {
		switch {
		case jsonSettings[key]:
			var decoded interface{}
			if err := json.Unmarshal([]byte(row.SettingValue), &decoded); err != nil || decoded == nil {
				decoded = []interface{}{}
			}
			view[key] = decoded
		case boolSettings[key]:
			view[key] = parseBool(row.SettingValue)
		default:
			view[key] = row.SettingValue
		}
	}

	for _, key := range credentialKeys() {
		if !isSecretKey(key) {
			continue
		}
		present := rowValue(rows, key) != "" || s.secretValue(ctx, key) != ""
		view[key] = ""
		view[key+"_present"] = present
	}

	return view, nil
}

func allowedSettingKeys() map[string]bool {
	allowed := map[string]bool{
		keyEnabled:              true,
		keyEnvironment:          true,
		keyAutoSyncEnabled:      true,
		keySyncDirection:        true,
		keySyncFrequency:        true,
		keySyncFields:           true,
		keyPriceSyncEnabled:     true,
		keyInventorySyncEnabled: true,
		keyCategoryMapping:      true,
		keyCurrency:             true,
	}
	for _, key := range credentialKeys() {
		allowed[key] = true
	}
	return allowed
}

// credentialKeys lists the legacy and environment-prefixed credential keys
func credentialKeys() []string {
	keys := make([]string, 0, len(credentialNames)*(len(environments)+1))
	for _, name := range credentialNames {
		keys = append(keys, legacyKey(name))
		for _, env := range environments {
			keys = append(keys, prefixedKey(env, name))
		}
	}
	return keys
}

func prefixedKey(env, name string) string {
	return "square_" + env + "_" + name
}

func legacyKey(name string) string {
	return "square_" + name
}

func isSecretKey(key string) bool {
	for name := range secretCredentials {
		if strings.HasPrefix(key, "square_") && strings.HasSuffix(key, "_"+name) {
			return true
		}
	}
	return false
}

func normalizeEnvironment(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), EnvironmentProduction) {
		return EnvironmentProduction
	}
	return EnvironmentSandbox
}

func encodeSetting(value interface{}) (string, models.SettingType, error) {
	switch v := value.(type) {
	case nil:
		return "", models.SettingTypeText, nil
	case bool:
		return strconv.FormatBool(v), models.SettingTypeBoolean, nil
	case string:
		return v, models.SettingTypeText, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), models.SettingTypeNumber, nil
	case []interface{}, map[string]interface{}, []string:
		data, err := json.Marshal(v)
		if err != nil {
			return "", "", err
		}
		return string(data), models.SettingTypeJSON, nil
	default:
		return fmt.Sprint(v), models.SettingTypeText, nil
	}
}

func displayName(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

func describeSetting(key string) string {
	if d, ok := settingDescriptions[key]; ok {
		return d
	}
	for _, name := range credentialNames {
		if strings.HasSuffix(key, "_"+name) {
			return settingDescriptions[name]
		}
	}
	return "Square integration setting"
}

func decodeSyncFields(rows map[string]models.BusinessSetting) []string {
	row, ok := rows[keySyncFields]
	if !ok {
		return append([]string(nil), defaultSyncFields...)
	}
	var fields []string
	if err := json.Unmarshal([]byte(row.SettingValue), &fields); err != nil {
		return nil
	}
	return fields
}

func rowValue(rows map[string]models.BusinessSetting, key string) string {
	return strings.TrimSpace(rows[key].SettingValue)
}

func rowValueOr(rows map[string]models.BusinessSetting, key, fallback string) string {
	if v := rowValue(rows, key); v != "" {
		return v
	}
	return fallback
}

func rowBool(rows map[string]models.BusinessSetting, key string, fallback bool) bool {
	row, ok := rows[key]
	if !ok {
		return fallback
	}
	return parseBool(row.SettingValue)
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
