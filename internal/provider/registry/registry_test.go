package registry

import (
    "testing"

    "github.com/stretchr/testify/require"

    "marketdata/internal/config"
    "marketdata/internal/provider"
)

func newTestRegistry(env map[string]string) *Registry {
    r := New(config.Default(), nil)
    r.lookupEnv = func(key string) (string, bool) {
        v, ok := env[key]
        return v, ok
    }
    return r
}

func TestGet_UnknownProvider(t *testing.T) {
    r := newTestRegistry(nil)
    _, err := r.Get("bloomberg", nil)
    var verr *provider.ValidationError
    require.ErrorAs(t, err, &verr)
    require.Equal(t, "provider", verr.Field)
}

func TestGet_MissingCredentialFailsAtConstruction(t *testing.T) {
    r := newTestRegistry(nil)
    _, err := r.Get("alphavantage", nil)
    var cerr *provider.CredentialError
    require.ErrorAs(t, err, &cerr)
    require.Equal(t, "ALPHA_VANTAGE_API_KEY", cerr.Key)
}

func TestGet_EnvCredentialSuffices(t *testing.T) {
    r := newTestRegistry(map[string]string{"POLYGON_API_KEY": "pk"})
    a, err := r.Get("polygon", nil)
    require.NoError(t, err)
    require.Equal(t, "polygon", a.Name())
}

func TestGet_ExplicitCredsWinOverEnv(t *testing.T) {
    r := newTestRegistry(map[string]string{"TIINGO_API_KEY": "from-env"})

    fromEnv, err := r.Get("tiingo", nil)
    require.NoError(t, err)
    fromMap, err := r.Get("tiingo", map[string]string{"TIINGO_API_KEY": "from-map"})
    require.NoError(t, err)

    // different credentials, so the registry must not share the instance
    require.NotSame(t, fromEnv, fromMap)
}

func TestGet_CachesInstancePerCredentials(t *testing.T) {
    r := newTestRegistry(map[string]string{"POLYGON_API_KEY": "pk"})

    first, err := r.Get("polygon", nil)
    require.NoError(t, err)
    second, err := r.Get("polygon", nil)
    require.NoError(t, err)
    require.Same(t, first, second)

    other, err := r.Get("polygon", map[string]string{"POLYGON_API_KEY": "other"})
    require.NoError(t, err)
    require.NotSame(t, first, other)
}

func TestGetDefault_FallsBackToYahoo(t *testing.T) {
    r := newTestRegistry(nil)
    a, err := r.GetDefault(nil)
    require.NoError(t, err)
    require.Equal(t, "yahoo", a.Name())
}

func TestGetDefault_PrefersCredentialedProvider(t *testing.T) {
    r := newTestRegistry(map[string]string{"TIINGO_API_KEY": "tk"})
    a, err := r.GetDefault(nil)
    require.NoError(t, err)
    require.Equal(t, "tiingo", a.Name())
}

func TestGetDefault_HonorsConfiguredDefault(t *testing.T) {
    cfg := config.Default()
    cfg.General.DefaultProvider = "polygon"
    r := New(cfg, nil)
    r.lookupEnv = func(key string) (string, bool) {
        if key == "POLYGON_API_KEY" {
            return "pk", true
        }
        if key == "ALPACA_API_KEY_ID" {
            return "id", true
        }
        if key == "ALPACA_API_SECRET_KEY" {
            return "sec", true
        }
        return "", false
    }

    a, err := r.GetDefault(nil)
    require.NoError(t, err)
    require.Equal(t, "polygon", a.Name())
}

func TestNames_ReturnsCopy(t *testing.T) {
    names := Names()
    require.Equal(t, []string{"alpaca", "polygon", "tiingo", "alphavantage", "yahoo"}, names)
    names[0] = "mutated"
    require.Equal(t, "alpaca", Names()[0])
}
