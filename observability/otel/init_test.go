package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,bad, =empty,x-tenant=defi")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "defi",
	}, headers)
}

func TestResourceDescribesNode(t *testing.T) {
	res, err := Resource(Config{ServiceName: "defid", Environment: "staging", Storage: "leveldb", DevMode: true})
	require.NoError(t, err)
	set := res.Set()

	want := map[attribute.Key]attribute.Value{
		semconv.ServiceNameKey:           attribute.StringValue("defid"),
		semconv.ServiceNamespaceKey:      attribute.StringValue(Namespace),
		semconv.DeploymentEnvironmentKey: attribute.StringValue("staging"),
		StorageKey:                       attribute.StringValue("leveldb"),
		DevModeKey:                       attribute.BoolValue(true),
	}
	for key, value := range want {
		got, ok := set.Value(key)
		if !ok {
			t.Fatalf("resource missing %s", key)
		}
		require.Equal(t, value, got, string(key))
	}

	res, err = Resource(Config{ServiceName: "defid"})
	require.NoError(t, err)
	_, ok := res.Set().Value(StorageKey)
	require.False(t, ok)
	_, ok = res.Set().Value(semconv.DeploymentEnvironmentKey)
	require.False(t, ok)
}

func TestInitWithoutExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{ServiceName: "  "})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "defid", Storage: "memory"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.NotNil(t, Tracer())
}
