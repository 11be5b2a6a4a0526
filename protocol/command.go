package protocol

// 遥控端 -> 仿真 的命令名
const (
	CmdKeyDown = "keyDown"
	CmdKeyUp   = "keyUp"
)

// 仿真 -> 遥控端 的事件名
const (
	EvtWebpageReady   = "webpage-ready"
	EvtSonarActivated = "sonarActivated"
	EvtCollision      = "collision"
)

// InboundNames 入站词表，Dispatcher 注册时据此校验
var InboundNames = []string{CmdKeyDown, CmdKeyUp}

// OutboundNames 出站词表
var OutboundNames = []string{EvtWebpageReady, EvtSonarActivated, EvtCollision}

// Command 双向共用的线上信封：{name, arg}
// 示例：{"name":"keyDown","arg":{"keyCode":87,"durationMs":100}}
type Command struct {
	Name string `json:"name" msgpack:"name"`
	Arg  any    `json:"arg,omitempty" msgpack:"arg,omitempty"`
}

// Inbound 解码后的入站命令，Arg 保留原始字节，由处理函数按类型二次解码
type Inbound struct {
	Name string
	Arg  []byte
}

// KeyDownArg 按键按下（控制端在按住期间重复发送，duration 为已按住时长）
type KeyDownArg struct {
	KeyCode    int     `json:"keyCode" msgpack:"keyCode"`
	DurationMs float64 `json:"durationMs" msgpack:"durationMs"`
}

// KeyUpArg 按键抬起
type KeyUpArg struct {
	KeyCode int `json:"keyCode" msgpack:"keyCode"`
}

// SonarArg 声呐触发事件的参数：哪个声呐、被哪个物体触发
type SonarArg struct {
	Sonar  string `json:"sonar" msgpack:"sonar"`
	Object string `json:"object" msgpack:"object"`
}

// IsInbound 判断命令名是否属于入站词表
func IsInbound(name string) bool {
	for _, n := range InboundNames {
		if n == name {
			return true
		}
	}
	return false
}
