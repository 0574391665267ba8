// Package resolver 提供跨网络命名空间的服务地址转换
//
// 服务之间通过容器网络互相访问时，接口描述里携带的localhost地址
// 对调用方没有意义，需要替换成目标服务在网络内的标识。
package resolver

import (
	"net/url"

	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
)

// AddressResolver 表示服务地址转换器，无状态、不做任何I/O
type AddressResolver struct {
	logger config.Logger
}

// NewAddressResolver 创建一个新的地址转换器
func NewAddressResolver(logger config.Logger) *AddressResolver {
	return &AddressResolver{logger: logger}
}

// isLoopbackHost 判断主机名是否为回环别名
func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}

// Normalize 将回环地址转换为目标服务标识
// address的主机部分是localhost或127.0.0.1且targetIdentity非空时，
// 用targetIdentity替换主机部分，保留协议和端口；其余情况原样返回。
// 无法解析的地址原样返回并记录日志，不视为错误。
func (r *AddressResolver) Normalize(address, targetIdentity string) string {
	if targetIdentity == "" {
		return address
	}

	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		r.logger.Debug("地址解析失败，保持原样",
			zap.String("address", address),
			zap.Error(err),
		)
		return address
	}

	if !isLoopbackHost(u.Hostname()) {
		return address
	}

	// 替换主机部分，保留端口
	if port := u.Port(); port != "" {
		u.Host = targetIdentity + ":" + port
	} else {
		u.Host = targetIdentity
	}

	return u.String()
}
