package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	values map[string]string
	calls  int
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: sdkaws.String(v)}, nil
}

func TestSecretsClient_CachesAndParses(t *testing.T) {
	api := &fakeSecrets{values: map[string]string{
		"reconciliation/GATEWAY_KEYS": `{"STRIPE_API_KEY":"sk_test_1"}`,
		"plain":                       "not json",
	}}
	s := newSecretsClient(api, time.Minute)

	m, err := s.GetSecretMap(context.Background(), "reconciliation/GATEWAY_KEYS")
	require.NoError(t, err)
	assert.Equal(t, "sk_test_1", m["STRIPE_API_KEY"])

	_, err = s.GetSecretMap(context.Background(), "reconciliation/GATEWAY_KEYS")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)

	_, err = s.GetSecretMap(context.Background(), "plain")
	assert.Error(t, err)
	_, err = s.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}

type fakeSNS struct {
	in *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	return &sns.PublishOutput{}, nil
}

func TestSNSClient_Attributes(t *testing.T) {
	api := &fakeSNS{}
	c := &SNSClient{api: api}

	err := c.Publish(context.Background(), "arn:topic", []byte(`{"a":1}`), map[string]string{"event_type": "order_confirmed", "empty": ""})
	require.NoError(t, err)
	assert.Equal(t, "arn:topic", *api.in.TopicArn)
	assert.Equal(t, `{"a":1}`, *api.in.Message)
	require.Contains(t, api.in.MessageAttributes, "event_type")
	assert.Equal(t, "order_confirmed", *api.in.MessageAttributes["event_type"].StringValue)
	assert.NotContains(t, api.in.MessageAttributes, "empty")

	assert.Error(t, c.Publish(context.Background(), "", nil, nil))
}
