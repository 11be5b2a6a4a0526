package server

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParsePort 解析监听端口，合法范围 [0, 65536)，0 表示由系统分配
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port %q", s)
	}
	if port < 0 || port >= 65536 {
		return 0, errors.Errorf("port %d out of range [0, 65536)", port)
	}
	return port, nil
}
