// Package xtaskconf 提供调度任务的配置加载能力。
//
// 基于 koanf 支持 YAML/JSON 两种格式，从文件或字节数据加载任务配置，
// 校验后映射为 xinterval 的调度选项。配合 fsnotify 监视能力，
// 配置文件变更时可自动重载（见 [Watch]）。
//
// # 配置结构
//
//	task:
//	  name: cleanup
//	  command: /usr/local/bin/cleanup
//	  args: ["--fast"]
//	  interval: 5m        # 与 cron 互斥
//	  stall: 30s          # 0 表示不启用失速监控
//	  start_delay: 10s    # 首次执行的延迟
//	  immediate: false    # true 时忽略 start_delay，立即启动
//	  detached: false
//	relay:
//	  addr: localhost:6379
//	  prefix: "xsched:"
//	log:
//	  file: /var/log/xsched.log
//	  level: info
//
// # 用法
//
//	cfg, err := xtaskconf.Load("/etc/xsched/task.yaml")
//	if err != nil {
//	    return err
//	}
//	scheduler, err := xinterval.New(task, cfg.Task.BuildOptions()...)
package xtaskconf
