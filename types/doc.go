// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentLens 平台的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、api、cmd 等上层
模块提供统一的错误码与 Context 传播约定，避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，覆盖校验、未找到、权限、限流、
    超时、传输等协议错误，并携带 HTTP 状态码与 Retryable 标记
  - Context 传播：WithTenantID / WithAgentID / WithTraceID / WithRequestID

# 主要能力

  - 错误构造：NewValidationError / NewNotFoundError / NewPermissionError /
    NewRateLimitError / NewTimeoutError / NewTransportError
  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable
*/
package types
