package models

import "errors"

// 同步引擎错误分类。除 ErrInfrastructure 外都是可恢复错误：
// 在最小作用域（单条报警、单个设备）捕获并记录，不中断整批运行
var (
	// ErrDeviceNotResolved 本地设备无法匹配到任何远程设备，本周期跳过
	ErrDeviceNotResolved = errors.New("device not resolved")

	// ErrRemoteFetchFailed 远程 API 调用失败（网络/超时/4xx/5xx）
	ErrRemoteFetchFailed = errors.New("remote fetch failed")

	// ErrMalformedAlertPayload 远程报警载荷缺少必需的 id
	ErrMalformedAlertPayload = errors.New("malformed alert payload")

	// ErrOwnershipConflict 同一设备出现第二个 owner 租户
	ErrOwnershipConflict = errors.New("ownership conflict")

	// ErrInfrastructure 基础设施故障（设备枚举失败、数据库不可用），整次运行失败
	ErrInfrastructure = errors.New("infrastructure failure")
)
