package server

import (
	"encoding/json"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expected := map[string][]string{
		"generate":       {"prompt"},
		"edit":           {"prompt"},
		"compose":        {"prompt", "images"},
		"style_transfer": {"baseImage", "styleImage"},
	}

	if len(tools) != len(expected) {
		t.Fatalf("got %d tools, want %d", len(tools), len(expected))
	}

	for _, tool := range tools {
		want, ok := expected[tool.Name]
		if !ok {
			t.Errorf("unexpected tool %s", tool.Name)
			continue
		}
		required, ok := tool.InputSchema["required"].([]string)
		if !ok {
			t.Errorf("%s: required is %T, want []string", tool.Name, tool.InputSchema["required"])
			continue
		}
		if len(required) != len(want) {
			t.Errorf("%s: required = %v, want %v", tool.Name, required, want)
			continue
		}
		for i := range want {
			if required[i] != want[i] {
				t.Errorf("%s: required = %v, want %v", tool.Name, required, want)
			}
		}
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("schema type = %v, want object", tool.InputSchema["type"])
			}

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("properties missing")
			}
			if _, ok := props["saveToFilePath"]; !ok {
				t.Error("every tool accepts saveToFilePath")
			}
			for _, name := range tool.InputSchema["required"].([]string) {
				if _, ok := props[name]; !ok {
					t.Errorf("required property %s is not declared", name)
				}
			}
		})
	}
}

func TestToolDefinitions_ComposeBounds(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		if tool.Name != "compose" {
			continue
		}
		images := tool.InputSchema["properties"].(map[string]interface{})["images"].(map[string]interface{})
		if images["minItems"] != minComposeImages || images["maxItems"] != maxComposeImages {
			t.Errorf("images bounds = %v..%v, want %d..%d", images["minItems"], images["maxItems"], minComposeImages, maxComposeImages)
		}
		return
	}
	t.Fatal("compose tool not found")
}

func TestToolDefinitions_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(GetToolDefinitions())
	if err != nil {
		t.Fatalf("failed to marshal tools: %v", err)
	}

	var decoded []map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("failed to unmarshal tools: %v", err)
	}
	for _, tool := range decoded {
		if _, ok := tool["inputSchema"]; !ok {
			t.Errorf("%v: inputSchema key missing", tool["name"])
		}
	}
}
