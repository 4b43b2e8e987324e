// Package api 汇总 AgentLens HTTP API 的 OpenAPI/Swagger 文档入口。
//
// 处理器实现位于 api/handlers，路由在 cmd/agentlens 中注册。
//
// # API 概览
//
// AgentLens 提供 Agent 之间的能力发现与任务委托：
//   - 能力注册与权限管理：/api/v1/capabilities
//   - 匿名能力发现与租户策略：/api/v1/discover、/api/v1/discovery/config
//   - 委托协议与目标端收件箱：/api/v1/delegations
//   - 审计日志与统计：/api/v1/delegations/logs、/api/v1/delegations/stats
//   - 健康检查：/health、/healthz、/ready、/version
//
// # 认证
//
// 启用认证时使用 Bearer JWT，tenant_id 与 agent_id 声明注入请求上下文：
//
//	Authorization: Bearer <token>
//
// 未启用认证时（仅限开发环境）从 X-Tenant-ID 与 X-Agent-ID 请求头读取身份。
//
// # 生成文档
//
//	swag init -g cmd/agentlens/main.go -o api --parseDependency --parseInternal
package api
