package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

const (
	UserIDFlag = "user-id"
	RoleFlag   = "role"
)

var TokenCmd = cli.Command{
	Name:        "token",
	Description: "Issue a signed session token for a user id",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     UserIDFlag,
			OnlyOnce: true,
			Required: true,
			Usage:    "Hex object id of the user",
		},
		&cli.StringFlag{
			Name:     RoleFlag,
			OnlyOnce: true,
			Usage:    "Role carried by the token (user or admin)",
			Value:    models.RoleUser,
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		userID, err := primitive.ObjectIDFromHex(c.String(UserIDFlag))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", UserIDFlag, err)
		}
		role := c.String(RoleFlag)
		if role != models.RoleUser && role != models.RoleAdmin {
			return fmt.Errorf("unknown role %q", role)
		}

		token, err := utils.GenerateJWTTokenWithSecret(models.Identity{ID: userID, Role: role}, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiration)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}
