package display

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestService(format OutputFormat) (DisplayService, *bytes.Buffer) {
	var buf bytes.Buffer
	config := DefaultDisplayConfig()
	config.Writer = &buf
	config.ColorEnabled = false
	config.UseIcons = false
	config.ShowProgress = false
	config.OutputFormat = string(format)
	return NewDisplayService(config), &buf
}

func TestNewDisplayService_Defaults(t *testing.T) {
	service := NewDisplayService(nil)
	config := service.GetConfig()
	require.NotNil(t, config)
	assert.True(t, config.ColorEnabled)
	assert.Equal(t, FormatTable, config.Format())
	assert.NotNil(t, config.Writer)
	assert.NotNil(t, config.Reader)
}

func TestDisplayService_TableOutput(t *testing.T) {
	service, buf := newTestService(FormatTable)

	service.PrintHeader("Export")
	service.PrintSection("Tenant", map[string]string{"name": "Acme", "id": "tenant-a"})
	service.PrintTable([]string{"Table", "Records"}, [][]string{{"Person", "3"}, {"User", "2"}})
	service.Success("done")
	service.Warning("careful")

	out := buf.String()
	assert.Contains(t, out, "Export")
	assert.Contains(t, out, "--- Tenant ---")
	assert.Less(t, strings.Index(out, "id:"), strings.Index(out, "name:"), "keys are sorted")
	assert.Contains(t, out, "Person")
	assert.Contains(t, out, "[OK] done")
	assert.Contains(t, out, "[WARN] careful")
}

func TestDisplayService_QuietMode(t *testing.T) {
	service, buf := newTestService(FormatTable)
	service.GetConfig().QuietMode = true

	service.PrintHeader("hidden")
	service.PrintTable([]string{"A"}, [][]string{{"1"}})
	service.Info("hidden")
	service.Error("shown")

	assert.Equal(t, "[ERROR] shown\n", buf.String())
}

func TestDisplayService_StructuredOutput(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		service, buf := newTestService(FormatJSON)
		service.PrintHeader("ignored")
		service.PrintTable([]string{"Table", "Records"}, [][]string{{"Person", "3"}})

		var rows []map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
		assert.Equal(t, []map[string]string{{"Table": "Person", "Records": "3"}}, rows)
	})

	t.Run("yaml", func(t *testing.T) {
		service, buf := newTestService(FormatYAML)
		service.PrintValue("Result", map[string]int{"records": 8})

		var decoded map[string]int
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, 8, decoded["records"])
	})
}

func TestDisplayService_SpinnerDisabled(t *testing.T) {
	service, buf := newTestService(FormatTable)
	handle := service.StartSpinner("working")
	assert.False(t, handle.IsActive())
	service.UpdateSpinner(handle, "still working")
	service.StopSpinner(handle, "finished")
	assert.Equal(t, "finished\n", buf.String())
}

func TestDisplayService_Spinner(t *testing.T) {
	service, buf := newTestService(FormatTable)
	service.GetConfig().ShowProgress = true

	handle := service.StartSpinner("working")
	assert.True(t, handle.IsActive())
	service.UpdateSpinner(handle, "almost")
	service.StopSpinner(handle, "finished")
	assert.False(t, handle.IsActive())
	assert.True(t, strings.HasSuffix(buf.String(), "finished\n"))
}

func TestDisplayConfig_Validate(t *testing.T) {
	config := DefaultDisplayConfig()
	require.NoError(t, config.Validate())

	config.OutputFormat = "xml"
	config.Theme = "neon"
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format 'xml'")
	assert.Contains(t, err.Error(), "invalid theme 'neon'")
}

func TestDisplayConfig_ProgressDisabledForStructuredOutput(t *testing.T) {
	config := DefaultDisplayConfig()
	assert.True(t, config.IsProgressEnabled())
	config.OutputFormat = string(FormatJSON)
	assert.False(t, config.IsProgressEnabled())
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for n, want := range tests {
		assert.Equal(t, want, FormatBytes(n))
	}
}

func TestIconSystem(t *testing.T) {
	icons := NewIconSystem(false)
	assert.Equal(t, "[OK]", icons.RenderIcon("success"))
	assert.Equal(t, "", icons.RenderIcon("unknown"))
	assert.Equal(t, "[ERROR]", icons.RenderIconWithColor("error", NewColorSystem(false)))
}

func TestGetThemeByName(t *testing.T) {
	assert.Equal(t, DarkColorTheme(), GetThemeByName("unknown"))
	assert.Equal(t, LightColorTheme(), GetThemeByName("light"))
	assert.Equal(t, ColorTheme{}, GetThemeByName("plain"))
}
