package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/rolemapping"
)

// Event is the payload of a lifecycle-scoped invocation: the request fields
// plus the engine's tf block.
type Event struct {
	rolemapping.Request
	TF *Lifecycle `json:"tf,omitempty"`
}

type Lifecycle struct {
	Action    string               `json:"action"`
	PrevInput *rolemapping.Request `json:"prev_input,omitempty"`
}

// Response represents the output of the Lambda function
type Response struct {
	Role         string   `json:"role"`
	BackendRoles []string `json:"backendRoles"`
	Changed      bool     `json:"changed"`
	Message      string   `json:"message"`
}

type applier interface {
	Apply(ctx context.Context, change rolemapping.Change) (rolemapping.Result, error)
}

type handler struct {
	mapper applier
	log    logrus.FieldLogger
}

// change turns an event into a mapping change. Events without a tf block are
// direct invocations and treated as create.
func (e Event) change() (rolemapping.Change, error) {
	c := rolemapping.Change{Action: rolemapping.ActionCreate, Request: e.Request}
	if e.TF == nil {
		return c, nil
	}
	action, err := rolemapping.ParseAction(e.TF.Action)
	if err != nil {
		return rolemapping.Change{}, err
	}
	c.Action = action
	c.Previous = e.TF.PrevInput
	return c, nil
}

func (h *handler) Handle(ctx context.Context, event Event) (Response, error) {
	change, err := event.change()
	if err != nil {
		return Response{}, err
	}
	log := h.log.WithFields(logrus.Fields{
		"action":   change.Action,
		"roleName": event.RoleName,
		"region":   event.Region,
	})
	log.Info("Starting role mapping")

	res, err := h.mapper.Apply(ctx, change)
	if err != nil {
		log.WithError(err).Error("Role mapping failed")
		return Response{}, fmt.Errorf("failed to %s role mapping for %s: %w", change.Action, event.RoleName, err)
	}

	msg := fmt.Sprintf("Successfully mapped role %s to %s", res.Role, strings.Join(event.Arns(), ","))
	if change.Action == rolemapping.ActionDelete {
		msg = fmt.Sprintf("Successfully deleted role mapping for %s", res.Role)
	}
	return Response{
		Role:         res.Role,
		BackendRoles: res.BackendRoles,
		Changed:      res.Changed(),
		Message:      msg,
	}, nil
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}

func loadSettings() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("ROLE_MAPPING_TIMEOUT", rolemapping.DefaultTimeout)
	return v
}

func main() {
	log := newLogger()
	settings := loadSettings()

	secretName := settings.GetString("OS_SECRET_NAME")
	if secretName == "" {
		log.Fatal("OS_SECRET_NAME environment variable not set")
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Error loading AWS config")
	}

	h := &handler{
		mapper: &rolemapping.Mapper{
			Secrets: rolemapping.NewSecretsManagerSource(secretsmanager.NewFromConfig(cfg), secretName),
			Timeout: settings.GetDuration("ROLE_MAPPING_TIMEOUT"),
			Log:     log,
		},
		log: log,
	}
	lambda.Start(h.Handle)
}
