// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排内核指标采集能力，覆盖
Cycle、LLM 调用、Agent 与 Failover 四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - Cycle 指标：按 agent_type/state/outcome 分组的循环总数计数，
    以及循环耗时 Histogram。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion）、
    调用成本，按 provider/model 分组。
  - Agent 指标：执行总数、状态转换计数，按 agent_id/agent_type 分组。
  - Failover 指标：Provider/Key 故障转移总数（按 from/to/reason 分组）
    与 Key 隔离（quarantine）总数（按 provider 分组）。
*/
package metrics
