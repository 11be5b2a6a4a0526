package protocol

import "github.com/invopop/jsonschema"

// Schemas 返回各命令参数的 JSON Schema，供控制端开发者对照
func Schemas() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		CmdKeyDown:        jsonschema.Reflect(&KeyDownArg{}),
		CmdKeyUp:          jsonschema.Reflect(&KeyUpArg{}),
		EvtSonarActivated: jsonschema.Reflect(&SonarArg{}),
		"envelope":        jsonschema.Reflect(&Command{}),
	}
}
