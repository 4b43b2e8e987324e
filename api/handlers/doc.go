// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentLens HTTP API 的请求处理器实现。

# 概述

handlers 包将能力注册、发现、委托协议与审计日志暴露为 REST 端点。
所有 Handler 均遵循标准 net/http 接口，路径参数通过 Request.PathValue 读取，
调用方租户与 Agent 由认证中间件写入 context，处理器从不解析凭证。

# 核心类型

  - CapabilityHandler — 能力注册、查询、删除与权限更新
  - DiscoveryHandler  — 匿名候选发现与租户 DiscoveryConfig
  - DelegationHandler — 发起委托、收件箱、accept/complete/reject/fail、日志导出与统计
  - HealthHandler     — 服务健康检查（/health, /healthz, /ready）
  - Response          — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo         — 结构化错误信息，含 code、message、retryable 标记

# 主要能力

  - 统一响应格式：WriteSuccess / WriteCreated / WriteError / WriteServiceError
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射（400/401/403/404/409/429/502/504/500）
  - 委托结果无论终态如何均以 200 返回，状态位于 data.status
*/
package handlers
