package database

import (
	"context"
	"time"

	"paygate-vip/infrastructure/config"

	"cloud.google.com/go/firestore"
	"github.com/gofiber/fiber/v2/log"
	"google.golang.org/api/option"
)

// NewFirestore uses FIRESTORE_CREDENTIALS_JSON when set and Application Default Credentials
// otherwise (service account on Cloud Run, GOOGLE_APPLICATION_CREDENTIALS locally).
func NewFirestore(cfg config.FirestoreConfig) (*firestore.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	log.Infow("firestore client ready", "projectId", cfg.ProjectID)

	return client, nil
}
