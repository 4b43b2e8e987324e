// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
Package delegation 实现 Agent 间任务委派协议的核心状态机。

# 概述

Service 负责创建、跟踪并终结委派请求：校验输入、检查租户策略与出站
限流、把请求交给 Pool Transport 投递到目标收件箱，然后在完成信号与
超时计时器之间竞争等待。超时后可按 maxRetries 回退到下一个发现的候选
目标。每一次尝试的终态都会追加写入委派日志。

# 状态机

	created → sent → accepted → completed
	                 accepted → failed
	        → rejected | timeout | error

# 核心接口

  - Service.Delegate        — 发起委派，永不返回 error，终态体现在 Result.Status
  - Service.AcceptDelegation / CompleteDelegation / RejectDelegation /
    FailDelegation          — 目标 Agent 侧操作，接受为原子 CAS
  - Service.GetInbox        — 拉取模式收件箱
  - LogStore                — 只追加的审计日志（内存、GORM、MongoDB 实现）
*/
package delegation
