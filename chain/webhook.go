package chain

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Solar-network/go-slp/params"
)

// webhookConditions restricts delivery to applied blocks carrying at
// least one transaction.
var webhookConditions = []interface{}{
	map[string]interface{}{
		"key":       "numberOfTransactions",
		"condition": "gte",
		"value":     "1",
	},
}

func webhookPath(datadir, database string) string {
	return filepath.Join(datadir, database+".wbh")
}

func tokenKeyPath(datadir, authorization string) string {
	sum := md5.Sum([]byte(authorization))
	return filepath.Join(datadir, hex.EncodeToString(sum[:])+".key")
}

// Subscribed reports whether a webhook descriptor is already on disk.
func Subscribed(datadir string, config *params.Config) bool {
	_, err := os.Stat(webhookPath(datadir, config.DatabaseName()))
	return err == nil
}

// Subscribe registers the block.applied webhook on the configured
// webhook peer, delivering to http://<listen>/blocks, and persists the
// descriptor plus the split token files under datadir.
func Subscribe(client Client, config *params.Config, datadir, listen string) error {
	if Subscribed(datadir, config) {
		log.Infof("already subscribed to %s", config.WebhookPeer())
		return nil
	}
	target := fmt.Sprintf("http://%s/blocks", listen)
	webhook, err := client.CreateWebhook(config.WebhookPeer(), target, webhookConditions)
	if err != nil {
		return errors.Wrapf(err, "subscription to %s failed", config.WebhookPeer())
	}
	keyfile, err := dumpWebhookToken(datadir, webhook.Token)
	if err != nil {
		return err
	}
	webhook.Token, webhook.Key = "", keyfile
	blob, err := json.Marshal(webhook)
	if err != nil {
		return err
	}
	if err := os.WriteFile(webhookPath(datadir, config.DatabaseName()), blob, 0600); err != nil {
		return err
	}
	log.Infof("subscribed to %s", config.WebhookPeer())
	return nil
}

// Unsubscribe drops the webhook on the peer and removes both on-disk
// files. A missing descriptor is not an error.
func Unsubscribe(client Client, config *params.Config, datadir string) error {
	path := webhookPath(datadir, config.DatabaseName())
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Infof("no subscription on %s", config.WebhookPeer())
		return nil
	}
	if err != nil {
		return err
	}
	var webhook Webhook
	if err := json.Unmarshal(blob, &webhook); err != nil {
		return err
	}
	if err := client.DeleteWebhook(config.WebhookPeer(), webhook.ID); err != nil {
		return errors.Wrapf(err, "unsubscription from %s failed", config.WebhookPeer())
	}
	if webhook.Key != "" {
		os.Remove(webhook.Key)
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	log.Infof("unsubscribed from %s", config.WebhookPeer())
	return nil
}

// dumpWebhookToken splits the 64 character webhook token: the first
// half travels as the Authorization header of every delivery, the
// second half stays local so the full token never persists in one
// place. The key file stores the verification half and the hash of
// the whole token.
func dumpWebhookToken(datadir, token string) (string, error) {
	if len(token) < 33 {
		return "", errors.New("webhook token too short")
	}
	authorization, verification := token[:32], token[32:]
	sum := sha256.Sum256([]byte(token))
	blob, err := json.Marshal(map[string]string{
		"verification": verification,
		"hash":         hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return "", err
	}
	filename := tokenKeyPath(datadir, authorization)
	if err := os.WriteFile(filename, blob, 0600); err != nil {
		return "", err
	}
	return filename, nil
}

// CheckWebhookToken authenticates a webhook delivery: rebuild the full
// token from the received authorization and the stored verification
// half, then compare its hash with the stored one.
func CheckWebhookToken(datadir, authorization string) bool {
	blob, err := os.ReadFile(tokenKeyPath(datadir, authorization))
	if err != nil {
		return false
	}
	var stored struct {
		Verification string `json:"verification"`
		Hash         string `json:"hash"`
	}
	if err := json.Unmarshal(blob, &stored); err != nil {
		return false
	}
	sum := sha256.Sum256([]byte(authorization + stored.Verification))
	return hex.EncodeToString(sum[:]) == stored.Hash
}
